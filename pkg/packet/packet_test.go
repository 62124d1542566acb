// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestPacketWireFormat(t *testing.T) {
	data := []byte{
		// Identifier: 15441
		0x00, 0x00, 0x3C, 0x51,
		// Source Port: 1234, Destination Port: 15441
		0x04, 0xD2, 0x3C, 0x51,
		// Sequence Number: 0x01020304
		0x01, 0x02, 0x03, 0x04,
		// Acknowledgement Number: 0xFFFFFFFF
		0xFF, 0xFF, 0xFF, 0xFF,
		// Header Length: 25, Packet Length: 28
		0x00, 0x19, 0x00, 0x1C,
		// Flags: SYN|ACK
		0x0C,
		// Advertised Window: 1375
		0x05, 0x5F,
		// Extension Length: 0
		0x00, 0x00,
		// Payload
		0x61, 0x62, 0x63,
	}

	p, err := New(1234, 15441, 0x01020304, 0xFFFFFFFF, 25, 28, FlagSyn|FlagAck, MSS, nil, []byte("abc"))
	if err != nil {
		t.Fatal(err)
	}

	if buf, err := p.Bytes(); err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(buf, data) {
		t.Fatalf("Data does not match, expected %x and got %x", data, buf)
	}

	if p2, err := Parse(data); err != nil {
		t.Fatal(err)
	} else if p2.PayloadLen() != 3 || !p2.HasFlags(FlagSyn|FlagAck) || p2.HasFlags(FlagFin) {
		t.Fatalf("Parsed packet has wrong fields: %v", p2)
	} else if p2.Seq != p.Seq || p2.Ack != p.Ack || !bytes.Equal(p2.Payload, p.Payload) {
		t.Fatalf("Parsed packet differs: %v became %v", p, p2)
	}
}

func TestPacketNew(t *testing.T) {
	tests := []struct {
		hlen    uint16
		plen    uint16
		ext     []byte
		payload []byte
		err     error
	}{
		{25, 25, nil, nil, nil},
		{25, 30, nil, []byte("hello"), nil},
		{27, 29, []byte{0x01, 0x00}, []byte("hi"), nil},
		{24, 25, nil, nil, ErrHeaderLength},
		{0, 0, nil, nil, ErrHeaderLength},
		{25, 24, nil, nil, ErrPacketLength},
		{30, 29, nil, nil, ErrPacketLength},
		{25, 30, nil, []byte("hi"), ErrLengthMismatch},
		{26, 26, nil, nil, ErrLengthMismatch},
	}

	for _, test := range tests {
		p, err := New(1, 2, 3, 4, test.hlen, test.plen, 0, 1, test.ext, test.payload)
		if !errors.Is(err, test.err) {
			t.Fatalf("New(hlen=%d, plen=%d) errored with %v, expected %v", test.hlen, test.plen, err, test.err)
		} else if err != nil && p != nil {
			t.Fatalf("New(hlen=%d, plen=%d) returned a packet and an error", test.hlen, test.plen)
		} else if err == nil && p.PayloadLen() != len(test.payload) {
			t.Fatalf("Payload length is %d, expected %d", p.PayloadLen(), len(test.payload))
		}
	}
}

func TestPacketParseInvalid(t *testing.T) {
	valid, err := Build(1, 2, 3, 4, FlagAck, 1, nil, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	validData, _ := valid.Bytes()

	foreign := append([]byte{}, validData...)
	foreign[3] ^= 0xFF

	shortPlen := append([]byte{}, validData...)
	shortPlen[18], shortPlen[19] = 0x00, 0x10

	badExt := append([]byte{}, validData...)
	badExt[24] = 0x03

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", []byte{}, ErrTruncated},
		{"identifier only", validData[:4], ErrTruncated},
		{"foreign", foreign, ErrIdentifier},
		{"header only", validData[:HeaderSize], ErrTruncated},
		{"payload cut", validData[:len(validData)-1], ErrTruncated},
		{"packet length", shortPlen, ErrPacketLength},
		{"extension length", badExt, ErrLengthMismatch},
	}

	for _, test := range tests {
		if _, err := Parse(test.data); !errors.Is(err, test.err) {
			t.Fatalf("%s: expected %v, got %v", test.name, test.err, err)
		}
	}
}

func TestPacketExtension(t *testing.T) {
	payload := []byte("hi there")
	p, err := Build(4000, 15441, 10, 20, 0, MSS, ChecksumExtension(payload), payload)
	if err != nil {
		t.Fatal(err)
	}

	if p.HeaderLen != HeaderSize+ChecksumExtLen {
		t.Fatalf("Header length is %d", p.HeaderLen)
	}

	data, err := p.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	p2, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	} else if !reflect.DeepEqual(p, p2) {
		t.Fatalf("Parsed packet differs: %v became %v", p, p2)
	} else if err := p2.VerifyChecksum(); err != nil {
		t.Fatal(err)
	}

	// Flip a payload bit
	data[len(data)-1] ^= 0x01
	if p3, err := Parse(data); err != nil {
		t.Fatal(err)
	} else if err := p3.VerifyChecksum(); !errors.Is(err, ErrChecksum) {
		t.Fatalf("Expected checksum error, got %v", err)
	}
}

func TestPacketWithoutChecksum(t *testing.T) {
	tests := []struct {
		ext   []byte
		valid bool
	}{
		{nil, true},
		{[]byte{0x02, 0x00}, true},
		{[]byte{0x02, 0x01, 0xAA}, true},
		{[]byte{0x02, 0x05, 0xAA}, false},
		{[]byte{0x01}, false},
		{[]byte{0x01, 0x01, 0xAA}, false},
	}

	for _, test := range tests {
		p, err := Build(1, 2, 3, 4, 0, 1, test.ext, []byte("data"))
		if err != nil {
			t.Fatal(err)
		}

		if err := p.VerifyChecksum(); (err == nil) != test.valid {
			t.Fatalf("Extension %x: error state was not expected; valid := %t, got := %v", test.ext, test.valid, err)
		}
	}
}

func TestFlagsString(t *testing.T) {
	tests := []struct {
		flags Flags
		str   string
	}{
		{0, "-"},
		{FlagSyn, "SYN"},
		{FlagAck, "ACK"},
		{FlagSyn | FlagAck, "SYN|ACK"},
		{FlagFin | FlagAck, "ACK|FIN"},
	}

	for _, test := range tests {
		if str := test.flags.String(); str != test.str {
			t.Fatalf("Flags %x: expected %q, got %q", uint8(test.flags), test.str, str)
		}
	}
}
