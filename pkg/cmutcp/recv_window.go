// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"github.com/neptune-me/computer-network-pj2/pkg/seq"
)

// recvSlot holds an out-of-order segment.
type recvSlot struct {
	seq     uint32
	payload []byte
	filled  bool
}

// recvWindow is the reassembly window. Its Base is the next sequence number expected.
type recvWindow struct {
	window seq.Window
	slots  []recvSlot
}

func newRecvWindow(slots int, unit uint32, start uint32) *recvWindow {
	return &recvWindow{
		window: seq.NewWindow(start, slots, unit),
		slots:  make([]recvSlot, slots),
	}
}

// Next is the next contiguous sequence number not yet delivered.
func (r *recvWindow) Next() uint32 {
	return r.window.Base
}

// Store a segment in its slot. Segments outside the window, i.e., already delivered ones and those too far ahead, are
// rejected with an error wrapping seq.ErrOutOfWindow.
func (r *recvWindow) Store(s uint32, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	idx, err := r.window.Index(s, len(payload))
	if err != nil {
		return err
	}

	slot := &r.slots[idx]
	slot.seq = s
	slot.payload = append(slot.payload[:0], payload...)
	slot.filled = true
	return nil
}

// Contiguous walks from Next through all filled slots in sequence and returns the first sequence number not covered.
func (r *recvWindow) Contiguous() uint32 {
	next := r.window.Base
	for {
		slot, ok := r.slotAt(next)
		if !ok {
			return next
		}
		next = seq.Add(next, len(slot.payload))
	}
}

// Deliver the contiguous data up to the sequence number until, as returned by Contiguous, in order. The deliver
// callback may refuse data, e.g., due to a full application buffer, in which case nothing is consumed.
func (r *recvWindow) Deliver(until uint32, deliver func([]byte) error) error {
	if !seq.After(until, r.window.Base) {
		return nil
	}

	data := make([]byte, 0, seq.Distance(r.window.Base, until))
	var consumed []*recvSlot
	for next := r.window.Base; seq.Before(next, until); {
		slot, ok := r.slotAt(next)
		if !ok {
			break
		}

		data = append(data, slot.payload...)
		consumed = append(consumed, slot)
		next = seq.Add(next, len(slot.payload))
	}

	if err := deliver(data); err != nil {
		return err
	}

	for _, slot := range consumed {
		slot.filled = false
		slot.payload = slot.payload[:0]
	}
	r.window.Advance(until)
	return nil
}

// slotAt returns the filled slot holding a segment starting exactly at s.
func (r *recvWindow) slotAt(s uint32) (*recvSlot, bool) {
	idx, err := r.window.Index(s, 0)
	if err != nil {
		return nil, false
	}

	slot := &r.slots[idx]
	if !slot.filled || slot.seq != s || len(slot.payload) == 0 {
		return nil, false
	}
	return slot, true
}
