// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import "fmt"

// Role of a connection, fixed at its creation.
type Role uint8

const (
	// Initiator actively connects to a known peer.
	Initiator Role = iota

	// Listener waits for the first peer to connect.
	Listener
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Listener:
		return "listener"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// State of a connection's handshake.
//
// The Initiator moves from StateClosed over StateSynSent to StateEstablished and falls back to StateClosed when a SYN
// times out. The Listener moves from StateListen over StateSynReceived to StateEstablished.
type State uint32

const (
	StateClosed State = iota
	StateSynSent
	StateListen
	StateSynReceived
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynSent:
		return "SYN_SENT"
	case StateListen:
		return "LISTEN"
	case StateSynReceived:
		return "SYN_RCVD"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// validTransition checks a state change against the handshake's state graph.
func validTransition(from, to State) bool {
	switch from {
	case StateClosed:
		return to == StateSynSent
	case StateSynSent:
		return to == StateEstablished || to == StateClosed
	case StateListen:
		return to == StateSynReceived
	case StateSynReceived:
		return to == StateEstablished
	default:
		return false
	}
}
