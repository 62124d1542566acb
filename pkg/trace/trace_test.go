// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package trace

import (
	"bytes"
	"net"
	"path/filepath"
	"testing"

	"github.com/neptune-me/computer-network-pj2/pkg/packet"
)

func testDatagram(t *testing.T, flags packet.Flags, payload []byte) []byte {
	p, err := packet.Build(4000, 15441, 23, 42, flags, packet.MSS, nil, payload)
	if err != nil {
		t.Fatal(err)
	}
	data, err := p.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func checkRecords(t *testing.T, records []Record, local, remote *net.UDPAddr) {
	if len(records) != 2 {
		t.Fatalf("read %d records", len(records))
	}

	out, in := records[0], records[1]
	if out.Src.String() != local.String() || out.Dst.String() != remote.String() {
		t.Fatalf("outbound record %v", out)
	}
	if in.Src.String() != remote.String() || in.Dst.String() != local.String() {
		t.Fatalf("inbound record %v", in)
	}

	if out.Packet.Flags != packet.FlagSyn || len(out.Packet.Payload) != 0 {
		t.Fatalf("outbound packet %v", out.Packet)
	}
	if in.Packet.Flags != 0 || !bytes.Equal(in.Packet.Payload, []byte("hi there")) {
		t.Fatalf("inbound packet %v", in.Packet)
	}
}

func TestWriterRoundtrip(t *testing.T) {
	tests := []struct {
		name          string
		local, remote *net.UDPAddr
	}{
		{"ipv4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}, &net.UDPAddr{IP: net.IPv4(10, 0, 1, 1), Port: 15441}},
		{"ipv6", &net.UDPAddr{IP: net.IPv6loopback, Port: 4000}, &net.UDPAddr{IP: net.ParseIP("fd00::1"), Port: 15441}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf)
			if err != nil {
				t.Fatal(err)
			}

			w.Trace(true, test.local, test.remote, testDatagram(t, packet.FlagSyn, nil))
			w.Trace(false, test.local, test.remote, testDatagram(t, 0, []byte("hi there")))

			if w.Packets() != 2 {
				t.Fatalf("traced %d packets", w.Packets())
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			records, err := ReadAll(&buf)
			if err != nil {
				t.Fatal(err)
			}
			checkRecords(t, records, test.local, test.remote)
		})
	}
}

func TestCreateFile(t *testing.T) {
	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}
	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 15441}

	for _, name := range []string{"capture.pcap", "capture.pcap.xz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			w, err := Create(path)
			if err != nil {
				t.Fatal(err)
			}

			w.Trace(true, local, remote, testDatagram(t, packet.FlagSyn, nil))
			w.Trace(false, local, remote, testDatagram(t, 0, []byte("hi there")))

			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			records, err := ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			checkRecords(t, records, local, remote)
		})
	}
}
