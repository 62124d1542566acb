// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import "sync"

// appBuffers are shared between a Conn's caller and its driver goroutine. Each part has its own lock; if both are
// needed, sendMutex is taken before deathMutex.
type appBuffers struct {
	sendMutex sync.Mutex
	staging   *byteQueue

	recvMutex sync.Mutex
	delivered *byteQueue
	readCond  *sync.Cond
	readErr   error

	deathMutex sync.Mutex
	dying      bool
	failure    error
}

func newAppBuffers(limit int) *appBuffers {
	app := &appBuffers{
		staging:   newByteQueue(limit),
		delivered: newByteQueue(limit),
	}
	app.readCond = sync.NewCond(&app.recvMutex)
	return app
}

// stage outbound bytes for the driver.
func (app *appBuffers) stage(p []byte) error {
	app.sendMutex.Lock()
	defer app.sendMutex.Unlock()

	app.deathMutex.Lock()
	dying, failure := app.dying, app.failure
	app.deathMutex.Unlock()

	switch {
	case dying:
		return ErrClosed
	case failure != nil:
		return failure
	case !app.staging.Fits(len(p)):
		return ErrBufferExhausted
	default:
		return app.staging.Append(p)
	}
}

// drain all staged bytes; nil if nothing was staged.
func (app *appBuffers) drain() []byte {
	app.sendMutex.Lock()
	defer app.sendMutex.Unlock()

	if app.staging.Len() == 0 {
		return nil
	}
	return app.staging.Drain()
}

// kill marks the buffers as dying. Afterwards, no bytes can be staged.
func (app *appBuffers) kill() {
	app.sendMutex.Lock()
	defer app.sendMutex.Unlock()

	app.deathMutex.Lock()
	app.dying = true
	app.deathMutex.Unlock()
}

func (app *appBuffers) isDying() bool {
	app.deathMutex.Lock()
	defer app.deathMutex.Unlock()

	return app.dying
}

// deliver in-order bytes to the readers. ErrBufferExhausted is returned if the limit would be exceeded; nothing is
// appended in this case.
func (app *appBuffers) deliver(p []byte) error {
	app.recvMutex.Lock()
	defer app.recvMutex.Unlock()

	if !app.delivered.Fits(len(p)) {
		return ErrBufferExhausted
	}
	return app.delivered.Append(p)
}

// signal waiting readers if there is something to read.
func (app *appBuffers) signal() {
	app.recvMutex.Lock()
	defer app.recvMutex.Unlock()

	if app.delivered.Len() > 0 {
		app.readCond.Broadcast()
	}
}

// finish after the driver stopped. Readers get readErr after the delivered bytes; writers get failure, if not nil.
func (app *appBuffers) finish(readErr, failure error) {
	app.deathMutex.Lock()
	app.failure = failure
	app.deathMutex.Unlock()

	app.recvMutex.Lock()
	app.readErr = readErr
	app.readCond.Broadcast()
	app.recvMutex.Unlock()
}
