// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"time"

	"github.com/neptune-me/computer-network-pj2/pkg/seq"
)

// sendSlot is an in-flight segment.
type sendSlot struct {
	seq           uint32
	payload       []byte
	sentAt        time.Time
	transmissions int
	acknowledged  bool
	inUse         bool
}

// end is the sequence number following this segment.
func (s sendSlot) end() uint32 {
	return seq.Add(s.seq, len(s.payload))
}

// sendWindow tracks in-flight segments in a circular table. Slots are filled in sequence order, so the oldest
// in-flight segment is always at tail.
type sendWindow struct {
	slots []sendSlot
	head  int
	tail  int
	used  int

	bytes   uint32
	lastAck uint32
	maxSent uint32
}

func newSendWindow(slots int, bytes uint32, start uint32) *sendWindow {
	return &sendWindow{
		slots:   make([]sendSlot, slots),
		bytes:   bytes,
		lastAck: start,
		maxSent: start,
	}
}

// Room is the number of bytes which might be sent before the window is full.
func (w *sendWindow) Room() int {
	if w.used == len(w.slots) {
		return 0
	}

	limit := seq.Add(w.lastAck, int(w.bytes))
	if !seq.Before(w.maxSent, limit) {
		return 0
	}
	return int(seq.Distance(w.maxSent, limit))
}

// InFlight is the number of sent, but unacknowledged bytes.
func (w *sendWindow) InFlight() uint32 {
	return seq.Distance(w.lastAck, w.maxSent)
}

// Push a newly sent segment into the next free slot. Push must only be called if Room is not less than the payload.
func (w *sendWindow) Push(payload []byte, now time.Time) sendSlot {
	slot := sendSlot{
		seq:           w.maxSent,
		payload:       payload,
		sentAt:        now,
		transmissions: 1,
		inUse:         true,
	}

	w.slots[w.head] = slot
	w.head = (w.head + 1) % len(w.slots)
	w.used++
	w.maxSent = slot.end()

	return slot
}

// Ack processes a cumulative acknowledgement. It reports whether the acknowledgement advanced the window and the
// round-trip time sample of the newest segment it covered, if this segment was sent only once.
func (w *sendWindow) Ack(ack uint32, now time.Time) (advanced bool, sample time.Duration, sampled bool) {
	if !seq.After(ack, w.lastAck) || seq.After(ack, w.maxSent) {
		return
	}

	advanced = true
	w.lastAck = ack

	for w.used > 0 {
		slot := &w.slots[w.tail]
		if seq.After(slot.end(), ack) {
			break
		}

		if slot.end() == ack && slot.transmissions == 1 {
			sample, sampled = now.Sub(slot.sentAt), true
		}

		slot.acknowledged = true
		slot.inUse = false
		slot.payload = nil

		w.tail = (w.tail + 1) % len(w.slots)
		w.used--
	}
	return
}

// Expired calls retransmit for each unacknowledged segment older than threshold and refreshes its timestamp.
func (w *sendWindow) Expired(now time.Time, threshold time.Duration, retransmit func(sendSlot) error) error {
	for i, idx := 0, w.tail; i < w.used; i, idx = i+1, (idx+1)%len(w.slots) {
		slot := &w.slots[idx]
		if !slot.inUse || slot.acknowledged || now.Sub(slot.sentAt) <= threshold {
			continue
		}

		if err := retransmit(*slot); err != nil {
			return err
		}

		slot.sentAt = now
		slot.transmissions++
	}
	return nil
}

// Acked checks if all bytes before s were acknowledged.
func (w *sendWindow) Acked(s uint32) bool {
	return !seq.Before(w.lastAck, s)
}
