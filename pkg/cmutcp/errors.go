// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("connection closed")

	// ErrConnectionFailed is matched by each HandshakeError.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrBufferExhausted is returned if a buffer would grow beyond the configured limit.
	ErrBufferExhausted = errors.New("buffer limit exhausted")

	// ErrPeerUnreachable is returned if outstanding data was not acknowledged within the stall timeout.
	ErrPeerUnreachable = errors.New("peer stopped acknowledging")

	// StageClose signals a closed stage, after calling the StageHandler's Close method.
	StageClose = errors.New("stage closed down")
)

// HandshakeError is returned if a connection could not be established.
type HandshakeError struct {
	Msg      string
	State    State
	Attempts int
	Cause    error
}

func newHandshakeError(msg string, state State, attempts int, cause error) *HandshakeError {
	return &HandshakeError{
		Msg:      msg,
		State:    state,
		Attempts: attempts,
		Cause:    cause,
	}
}

func (err *HandshakeError) Error() string {
	msg := fmt.Sprintf("%s in %v after %d attempts", err.Msg, err.State, err.Attempts)
	if err.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, err.Cause)
	}
	return msg
}

func (err *HandshakeError) Unwrap() error {
	return err.Cause
}

// Is lets each HandshakeError match ErrConnectionFailed.
func (err *HandshakeError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// timeoutError is returned by reads in ReadTimeout mode and implements net.Error.
type timeoutError struct{}

func (timeoutError) Error() string   { return "cmutcp: read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// ErrTimeout is returned by a read in ReadTimeout mode without any data.
var ErrTimeout error = timeoutError{}
