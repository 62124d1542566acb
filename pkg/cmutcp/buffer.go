// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"github.com/smallnest/ringbuffer"
)

// initialBufferSize of a byteQueue's ring buffer before its first growth.
const initialBufferSize = 4 * 1024

// byteQueue is a FIFO of bytes on top of a ring buffer, growing up to a limit. It is not safe for concurrent use; each
// byteQueue is guarded by its owner's mutex.
type byteQueue struct {
	rb    *ringbuffer.RingBuffer
	limit int
}

func newByteQueue(limit int) *byteQueue {
	size := initialBufferSize
	if size > limit {
		size = limit
	}

	return &byteQueue{
		rb:    ringbuffer.New(size),
		limit: limit,
	}
}

// Len of the queued bytes.
func (q *byteQueue) Len() int {
	return q.rb.Length()
}

// Fits checks if n more bytes can be queued without exceeding the limit.
func (q *byteQueue) Fits(n int) bool {
	return q.rb.Length()+n <= q.limit
}

// Append p to the queue. If the queue would exceed its limit, nothing is queued and ErrBufferExhausted is returned.
func (q *byteQueue) Append(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	if len(p) > q.rb.Free() {
		if err := q.grow(q.rb.Length() + len(p)); err != nil {
			return err
		}
	}

	_, err := q.rb.Write(p)
	return err
}

// grow the underlying ring buffer to hold at least need bytes.
func (q *byteQueue) grow(need int) error {
	if need > q.limit {
		return ErrBufferExhausted
	}

	size := q.rb.Capacity()
	for size < need {
		size *= 2
	}
	if size > q.limit {
		size = q.limit
	}

	next := ringbuffer.New(size)
	if q.rb.Length() > 0 {
		if _, err := next.Write(q.Drain()); err != nil {
			return err
		}
	}

	q.rb = next
	return nil
}

// Read up to len(p) bytes from the front of the queue.
func (q *byteQueue) Read(p []byte) int {
	if len(p) == 0 || q.rb.IsEmpty() {
		return 0
	}

	n, _ := q.rb.Read(p)
	return n
}

// Drain all queued bytes.
func (q *byteQueue) Drain() []byte {
	buf := make([]byte, q.rb.Length())
	if len(buf) > 0 {
		_, _ = q.rb.Read(buf)
	}
	return buf
}
