// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Identifier is the protocol constant leading each packet.
	Identifier uint32 = 15441

	// HeaderSize is the size of the fixed header without any extension data.
	HeaderSize = 25

	// MaxLen is the largest datagram to be sent.
	MaxLen = 1400

	// MSS is the maximum segment size, the largest payload of a packet without extension data.
	MSS = MaxLen - HeaderSize
)

var (
	// ErrHeaderLength is returned for a header length below HeaderSize.
	ErrHeaderLength = errors.New("header length is shorter than the fixed header")

	// ErrPacketLength is returned for a packet length below the header length.
	ErrPacketLength = errors.New("packet length is shorter than the header length")

	// ErrLengthMismatch is returned if the length fields disagree with the extension or payload.
	ErrLengthMismatch = errors.New("length fields do not match the packet's content")

	// ErrIdentifier is returned for datagrams not starting with the Identifier.
	ErrIdentifier = errors.New("foreign identifier")

	// ErrTruncated is returned for datagrams shorter than their announced packet length.
	ErrTruncated = errors.New("truncated packet")
)

// header is the fixed part of a packet as laid out on the wire.
type header struct {
	Identifier uint32
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	HeaderLen  uint16
	PacketLen  uint16
	Flags      Flags
	AdvWindow  uint16
	ExtLen     uint16
}

// Packet of the CMU-TCP protocol.
type Packet struct {
	SrcPort   uint16
	DstPort   uint16
	Seq       uint32
	Ack       uint32
	HeaderLen uint16
	PacketLen uint16
	Flags     Flags
	AdvWindow uint16

	Extension []byte
	Payload   []byte
}

// New creates a Packet from all header fields, extension data and the payload.
//
// Creation fails if the header length is shorter than HeaderSize, if the packet length is shorter than the header
// length or if both lengths do not describe the given extension and payload.
func New(src, dst uint16, seq, ack uint32, hlen, plen uint16, flags Flags, advWindow uint16,
	ext, payload []byte) (*Packet, error) {
	if hlen < HeaderSize {
		return nil, ErrHeaderLength
	}
	if plen < hlen {
		return nil, ErrPacketLength
	}
	if int(hlen)-HeaderSize != len(ext) || int(plen-hlen) != len(payload) {
		return nil, ErrLengthMismatch
	}

	return &Packet{
		SrcPort:   src,
		DstPort:   dst,
		Seq:       seq,
		Ack:       ack,
		HeaderLen: hlen,
		PacketLen: plen,
		Flags:     flags,
		AdvWindow: advWindow,
		Extension: ext,
		Payload:   payload,
	}, nil
}

// Build a Packet and derive both length fields from the extension and payload.
func Build(src, dst uint16, seq, ack uint32, flags Flags, advWindow uint16, ext, payload []byte) (*Packet, error) {
	hlen := HeaderSize + len(ext)
	plen := hlen + len(payload)
	if plen > 0xFFFF {
		return nil, fmt.Errorf("packet of %d bytes exceeds the length field", plen)
	}

	return New(src, dst, seq, ack, uint16(hlen), uint16(plen), flags, advWindow, ext, payload)
}

// PayloadLen is the packet length without the header length.
func (p Packet) PayloadLen() int {
	return int(p.PacketLen) - int(p.HeaderLen)
}

// HasFlags checks if all given flags are set.
func (p Packet) HasFlags(flags Flags) bool {
	return p.Flags.Has(flags)
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet(%d->%d, seq=%d, ack=%d, flags=%v, window=%d, ext=%d, payload=%d)",
		p.SrcPort, p.DstPort, p.Seq, p.Ack, p.Flags, p.AdvWindow, len(p.Extension), len(p.Payload))
}

// Marshal the Packet in its wire format into a Writer.
func (p Packet) Marshal(w io.Writer) error {
	hdr := header{
		Identifier: Identifier,
		SrcPort:    p.SrcPort,
		DstPort:    p.DstPort,
		Seq:        p.Seq,
		Ack:        p.Ack,
		HeaderLen:  p.HeaderLen,
		PacketLen:  p.PacketLen,
		Flags:      p.Flags,
		AdvWindow:  p.AdvWindow,
		ExtLen:     uint16(len(p.Extension)),
	}

	if err := binary.Write(w, binary.BigEndian, hdr); err != nil {
		return err
	}

	for _, field := range [][]byte{p.Extension, p.Payload} {
		if len(field) == 0 {
			continue
		}
		if _, err := w.Write(field); err != nil {
			return err
		}
	}

	return nil
}

// Bytes returns the Packet's wire format.
func (p Packet) Bytes() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, int(p.PacketLen)))
	if err := p.Marshal(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal a Packet from its wire format out of a Reader.
func (p *Packet) Unmarshal(r io.Reader) error {
	var idBytes [4]byte
	if _, err := io.ReadFull(r, idBytes[:]); err != nil {
		return truncated(err)
	} else if id := binary.BigEndian.Uint32(idBytes[:]); id != Identifier {
		return fmt.Errorf("%w: %d instead of %d", ErrIdentifier, id, Identifier)
	}

	var hdr header
	hr := io.MultiReader(bytes.NewReader(idBytes[:]), r)
	if err := binary.Read(hr, binary.BigEndian, &hdr); err != nil {
		return truncated(err)
	}

	if hdr.HeaderLen < HeaderSize {
		return ErrHeaderLength
	}
	if hdr.PacketLen < hdr.HeaderLen {
		return ErrPacketLength
	}
	if int(hdr.HeaderLen)-HeaderSize != int(hdr.ExtLen) {
		return ErrLengthMismatch
	}

	ext := make([]byte, hdr.ExtLen)
	if _, err := io.ReadFull(r, ext); err != nil {
		return truncated(err)
	}

	payload := make([]byte, hdr.PacketLen-hdr.HeaderLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return truncated(err)
	}

	*p = Packet{
		SrcPort:   hdr.SrcPort,
		DstPort:   hdr.DstPort,
		Seq:       hdr.Seq,
		Ack:       hdr.Ack,
		HeaderLen: hdr.HeaderLen,
		PacketLen: hdr.PacketLen,
		Flags:     hdr.Flags,
		AdvWindow: hdr.AdvWindow,
		Extension: ext,
		Payload:   payload,
	}
	return nil
}

// Parse a received datagram into a Packet.
func Parse(datagram []byte) (*Packet, error) {
	p := new(Packet)
	if err := p.Unmarshal(bytes.NewReader(datagram)); err != nil {
		return nil, err
	}
	return p, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
