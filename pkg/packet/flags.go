// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import "strings"

// Flags of a packet's header.
type Flags uint8

const (
	// FlagFin is defined on the wire, but never acted upon.
	FlagFin Flags = 0x02

	// FlagAck marks a valid acknowledgement number.
	FlagAck Flags = 0x04

	// FlagSyn requests or confirms the synchronization of sequence numbers.
	FlagSyn Flags = 0x08
)

// Has checks if all bits of other are set.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

func (f Flags) String() string {
	var fields []string

	if f.Has(FlagSyn) {
		fields = append(fields, "SYN")
	}
	if f.Has(FlagAck) {
		fields = append(fields, "ACK")
	}
	if f.Has(FlagFin) {
		fields = append(fields, "FIN")
	}

	if len(fields) == 0 {
		return "-"
	}
	return strings.Join(fields, "|")
}
