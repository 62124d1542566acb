// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"bytes"
	"errors"
	"testing"
)

func TestByteQueueGrow(t *testing.T) {
	q := newByteQueue(1 << 20)

	var expected []byte
	for i := 0; i < 100; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 1000)
		if err := q.Append(chunk); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		expected = append(expected, chunk...)
	}

	if q.Len() != len(expected) {
		t.Fatalf("length is %d, expected %d", q.Len(), len(expected))
	}
	if data := q.Drain(); !bytes.Equal(data, expected) {
		t.Fatal("drained data differs")
	}
	if q.Len() != 0 {
		t.Fatalf("length after drain is %d", q.Len())
	}
}

func TestByteQueueLimit(t *testing.T) {
	q := newByteQueue(8)

	if err := q.Append([]byte("12345")); err != nil {
		t.Fatal(err)
	}
	if q.Fits(4) {
		t.Fatal("queue claims to fit beyond its limit")
	}
	if err := q.Append([]byte("6789")); !errors.Is(err, ErrBufferExhausted) {
		t.Fatalf("expected ErrBufferExhausted, got %v", err)
	}
	if err := q.Append([]byte("678")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 3)
	if n := q.Read(buf); n != 3 || string(buf) != "123" {
		t.Fatalf("read %d bytes %q", n, buf[:n])
	}
	if err := q.Append([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if data := q.Drain(); string(data) != "45678abc" {
		t.Fatalf("drained %q", data)
	}
}

func TestByteQueueReadEmpty(t *testing.T) {
	q := newByteQueue(16)
	if n := q.Read(make([]byte, 4)); n != 0 {
		t.Fatalf("read %d bytes from an empty queue", n)
	}
	if data := q.Drain(); len(data) != 0 {
		t.Fatalf("drained %d bytes from an empty queue", len(data))
	}
}
