// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"sync"
)

// StageHandler executes a sequence of Stages on a single goroutine and passes the Engine from one Stage to another.
// Errors are propagated back through the Error method.
type StageHandler struct {
	stages []StageSetup
	engine *Engine

	currentStage      Stage
	currentStageMutex sync.RWMutex

	errChan   chan error
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewStageHandler for a slice of Stages on an Engine. The handler starts right away.
func NewStageHandler(stages []StageSetup, engine *Engine) (sh *StageHandler) {
	sh = &StageHandler{
		stages: stages,
		engine: engine,

		errChan:   make(chan error, 1),
		closeChan: make(chan struct{}),
	}

	go sh.handler()

	return
}

func (sh *StageHandler) handler() {
	defer close(sh.errChan)

	defer func() {
		sh.currentStageMutex.Lock()
		sh.currentStage = nil
		sh.currentStageMutex.Unlock()
	}()

	for i := 0; i < len(sh.stages); i++ {
		setup := sh.stages[i]

		sh.currentStageMutex.Lock()
		sh.currentStage = setup.Stage
		sh.currentStageMutex.Unlock()

		if setup.PreHook != nil {
			if err := setup.PreHook(sh, sh.engine); err != nil {
				sh.errChan <- err
				return
			}
		}

		setup.Stage.Handle(sh.engine, sh.closeChan)
		if err := sh.engine.stageError; err != nil {
			sh.errChan <- err
			return
		}

		if setup.PostHook != nil {
			if err := setup.PostHook(sh, sh.engine); err != nil {
				sh.errChan <- err
				return
			}
		}
	}
}

// Current Stage being executed, nil after the last Stage.
func (sh *StageHandler) Current() Stage {
	sh.currentStageMutex.RLock()
	defer sh.currentStageMutex.RUnlock()

	return sh.currentStage
}

// Error might return errors risen in a Stage. The channel is closed after the last Stage.
func (sh *StageHandler) Error() <-chan error {
	return sh.errChan
}

// Close this StageHandler and the current Stage.
func (sh *StageHandler) Close() error {
	sh.closeOnce.Do(func() { close(sh.closeChan) })
	return nil
}
