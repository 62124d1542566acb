// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package seq provides circular comparisons of 32 bit sequence numbers and a modular index into fixed size windows.
//
// Sequence numbers wrap around at 2^32. Two numbers are compared by the sign of their difference, which is only
// meaningful for numbers less than 2^31 apart.
package seq

import (
	"errors"
	"fmt"

	"github.com/google/netstack/tcpip/seqnum"
)

// Before reports whether a precedes b.
func Before(a, b uint32) bool {
	return seqnum.Value(a).LessThan(seqnum.Value(b))
}

// After reports whether a succeeds b.
func After(a, b uint32) bool {
	return Before(b, a)
}

// Between reports whether s lies within the closed range from low to high.
func Between(s, low, high uint32) bool {
	return high-low >= s-low
}

// Add n bytes to the sequence number s.
func Add(s uint32, n int) uint32 {
	return uint32(seqnum.Value(s).Add(seqnum.Size(n)))
}

// Distance from a to b, i.e., the number of bytes b lies ahead of a.
func Distance(a, b uint32) uint32 {
	return uint32(seqnum.Value(a).Size(seqnum.Value(b)))
}

// ErrOutOfWindow is returned for sequence numbers outside of a Window's span.
var ErrOutOfWindow = errors.New("sequence number is outside of the window")

// Window maps sequence numbers of a sliding window onto a fixed number of slots.
//
// The window starts at Base and spans Slots times Unit bytes. A slot's index is the number of Units a sequence number
// lies ahead of Origin, modulo the number of Slots. Origin is fixed for a stream, Base moves forward.
type Window struct {
	Origin uint32
	Base   uint32
	Slots  int
	Unit   uint32
}

// NewWindow for a stream starting at origin.
func NewWindow(origin uint32, slots int, unit uint32) Window {
	return Window{
		Origin: origin,
		Base:   origin,
		Slots:  slots,
		Unit:   unit,
	}
}

// Span of this Window in bytes.
func (w Window) Span() uint32 {
	return uint32(w.Slots) * w.Unit
}

// End is the first sequence number after this Window.
func (w Window) End() uint32 {
	return w.Base + w.Span()
}

// Contains checks if the n bytes starting at s lie within this Window.
func (w Window) Contains(s uint32, n int) bool {
	if !seqnum.Value(s).InWindow(seqnum.Value(w.Base), seqnum.Size(w.Span())) {
		return false
	}
	return uint64(Distance(w.Base, s))+uint64(n) <= uint64(w.Span())
}

// Index of the slot for the n bytes starting at s. An ErrOutOfWindow is returned if they exceed the Window.
func (w Window) Index(s uint32, n int) (int, error) {
	if w.Slots <= 0 || w.Unit == 0 {
		return 0, fmt.Errorf("window of %d slots with %d byte units is empty", w.Slots, w.Unit)
	}
	if !w.Contains(s, n) {
		return 0, fmt.Errorf("%w: %d+%d not in [%d, %d)", ErrOutOfWindow, s, n, w.Base, w.End())
	}

	return int((Distance(w.Origin, s) / w.Unit) % uint32(w.Slots)), nil
}

// Advance the Window's Base to s, if s succeeds the current Base.
func (w *Window) Advance(s uint32) {
	if After(s, w.Base) {
		w.Base = s
	}
}
