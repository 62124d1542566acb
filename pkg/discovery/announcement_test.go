// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"reflect"
	"testing"
)

func TestDiscoveryMessageCbor(t *testing.T) {
	var tests = []Announcement{
		{Service: "cmutcp-server", Port: 15441},
		{Service: "cmutcp-server", Port: 15441, Checksum: true},
		{Service: "", Port: 0},
		{Service: "ünïcode", Port: 65535},
	}

	for _, dmIn := range tests {
		buff, err := MarshalAnnouncements([]Announcement{dmIn})
		if err != nil {
			t.Fatalf("Encoding failed: %v", err)
		}

		// Decode into another Announcement
		dmsOut, err := UnmarshalAnnouncements(buff)
		if err != nil {
			t.Fatalf("Decoding failed: %v", err)
		}

		if l := len(dmsOut); l != 1 {
			t.Fatalf("Length of decoded Announcements is %d != 1", l)
		}

		if !reflect.DeepEqual(dmIn, dmsOut[0]) {
			t.Fatalf("Decoded Announcement differs: %v became %v", dmIn, dmsOut[0])
		}
	}
}

func TestDiscoveryMessageEmpty(t *testing.T) {
	buff, err := MarshalAnnouncements(nil)
	if err != nil {
		t.Fatal(err)
	}

	dmsOut, err := UnmarshalAnnouncements(buff)
	if err != nil {
		t.Fatal(err)
	} else if len(dmsOut) != 0 {
		t.Fatalf("decoded %d Announcements from an empty list", len(dmsOut))
	}
}

func TestDiscoveryMessageInvalidPort(t *testing.T) {
	buff, err := MarshalAnnouncements([]Announcement{{Service: "x", Port: 70000}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := UnmarshalAnnouncements(buff); err == nil {
		t.Fatal("decoded a port beyond the UDP range")
	}
}

func TestPeerAddress(t *testing.T) {
	tests := []struct {
		peer     Peer
		expected string
	}{
		{Peer{Announcement{Port: 15441}, "10.0.1.1"}, "10.0.1.1:15441"},
		{Peer{Announcement{Port: 15441}, "fe80::1"}, "[fe80::1]:15441"},
	}

	for _, test := range tests {
		if addr := test.peer.Address(); addr != test.expected {
			t.Fatalf("address is %s instead of %s", addr, test.expected)
		}
	}
}
