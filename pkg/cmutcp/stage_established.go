// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	log "github.com/sirupsen/logrus"
)

// EstablishedStage drives an established connection. Each iteration drains the staged outbound bytes and sends them
// through the window, then polls the socket once. After Close, it returns as soon as nothing is staged anymore.
type EstablishedStage struct {
	engine    *Engine
	closeChan <-chan struct{}
}

// Handle this Stage's action based on the previous Stage's Engine and the StageHandler's close channel.
func (es *EstablishedStage) Handle(e *Engine, closeChan <-chan struct{}) {
	es.engine = e
	es.closeChan = closeChan

	e.stageError = es.drive()
}

func (es *EstablishedStage) drive() error {
	e := es.engine

	for {
		select {
		case <-es.closeChan:
			return StageClose
		default:
		}

		// dying must be read before draining. Close sets it while holding the send lock, so no Write can slip
		// in between an empty drain and the final return.
		dying := e.app.isDying()
		data := e.app.drain()

		if dying && len(data) == 0 {
			log.WithFields(log.Fields{
				"engine": e,
				"linger": e.config.Linger,
			}).Debug("Connection drained its outbound data")

			if e.config.Linger > 0 {
				if err := e.linger(es.closeChan); err != nil {
					return err
				}
			}
			e.publish()
			return nil
		}

		if err := e.send(data, es.closeChan); err != nil {
			return err
		}

		if err := e.poll(); err != nil {
			return err
		}

		e.publish()
	}
}
