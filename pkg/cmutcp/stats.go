// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"fmt"
	"time"
)

// Stats is a snapshot of a connection's engine.
type Stats struct {
	Role       Role   `json:"role"`
	State      State  `json:"state"`
	LocalAddr  string `json:"local_addr"`
	RemoteAddr string `json:"remote_addr"`

	EstimatedRTT time.Duration `json:"estimated_rtt"`
	DeviationRTT time.Duration `json:"deviation_rtt"`
	RTO          time.Duration `json:"rto"`
	RTTSamples   int           `json:"rtt_samples"`

	LastAckReceived      uint32 `json:"last_ack_received"`
	MaxSequenceSent      uint32 `json:"max_sequence_sent"`
	NextSequenceExpected uint32 `json:"next_sequence_expected"`
	InFlight             uint32 `json:"in_flight"`

	SegmentsSent     uint64 `json:"segments_sent"`
	Retransmissions  uint64 `json:"retransmissions"`
	SegmentsReceived uint64 `json:"segments_received"`
	Duplicates       uint64 `json:"duplicates"`
	AcksSent         uint64 `json:"acks_sent"`
	AcksReceived     uint64 `json:"acks_received"`
	Dropped          uint64 `json:"dropped"`
	BytesDelivered   uint64 `json:"bytes_delivered"`
}

// MarshalText lets a Role appear by its name, e.g., in JSON.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// MarshalText lets a State appear by its name, e.g., in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a Role's name.
func (r *Role) UnmarshalText(text []byte) error {
	for _, role := range []Role{Initiator, Listener} {
		if role.String() == string(text) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", text)
}

// UnmarshalText parses a State's name.
func (s *State) UnmarshalText(text []byte) error {
	for _, state := range []State{StateClosed, StateSynSent, StateListen, StateSynReceived, StateEstablished} {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}
