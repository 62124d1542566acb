// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

// Stage of a connection's life, e.g., the handshake or the established data exchange.
type Stage interface {
	// Handle this Stage's action based on the previous Stage's Engine and the StageHandler's close channel. Failures
	// are reported back through the Engine.
	Handle(e *Engine, closeChan <-chan struct{})
}

// StageSetup wraps a Stage with two possible hooks (pre and post) to be used within the StageHandler.
type StageSetup struct {
	// Stage to be executed.
	Stage Stage

	// PreHook will be executed before starting the Stage, if not nil.
	PreHook func(*StageHandler, *Engine) error
	// PostHook will be executed after a finished Stage, if not nil.
	PostHook func(*StageHandler, *Engine) error
}
