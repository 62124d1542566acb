// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/neptune-me/computer-network-pj2/pkg/packet"
	"github.com/neptune-me/computer-network-pj2/pkg/seq"
)

// HandshakeStage models the three-way handshake. The Initiator sends a SYN, awaits a SYN+ACK and completes with an
// ACK. The Listener awaits a SYN and answers with a SYN+ACK until the final ACK arrives.
type HandshakeStage struct {
	engine    *Engine
	closeChan <-chan struct{}
}

// Handle this Stage's action based on the previous Stage's Engine and the StageHandler's close channel.
func (hs *HandshakeStage) Handle(e *Engine, closeChan <-chan struct{}) {
	hs.engine = e
	hs.closeChan = closeChan

	if e.role == Initiator {
		e.stageError = hs.handleInitiator()
	} else {
		e.stageError = hs.handleListener()
	}
}

func (hs *HandshakeStage) closed() bool {
	select {
	case <-hs.closeChan:
		return true
	default:
		return false
	}
}

// await packets until accept returns true, the timeout expires or the stage is closed. A zero timeout waits until
// the stage is closed. On timeout, a nil packet and no error is returned.
func (hs *HandshakeStage) await(timeout time.Duration, accept func(*packet.Packet) bool) (*packet.Packet, net.Addr, error) {
	e := hs.engine
	deadline := time.Now().Add(timeout)

	// Wake up regularly to check the close channel.
	wakeup := e.config.PollInterval * 100

	for {
		if hs.closed() {
			return nil, nil, StageClose
		}

		wait := wakeup
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, nil, nil
			} else if remaining < wait {
				wait = remaining
			}
		}

		p, addr, err := e.receive(wait)
		if err != nil {
			return nil, nil, err
		} else if p != nil && accept(p) {
			return p, addr, nil
		}
	}
}

func (hs *HandshakeStage) handleInitiator() error {
	e := hs.engine

	for attempt := 1; attempt <= e.config.HandshakeAttempts; attempt++ {
		if err := e.sendPacket(packet.FlagSyn, e.iss, 0, nil); err != nil {
			return newHandshakeError("sending SYN failed", e.State(), attempt, err)
		}
		e.setState(StateSynSent)

		log.WithFields(log.Fields{
			"engine":  e,
			"attempt": attempt,
			"iss":     e.iss,
		}).Debug("Initiator sent SYN")

		synAck, _, err := hs.await(e.config.HandshakeTimeout, func(p *packet.Packet) bool {
			return p.HasFlags(packet.FlagSyn|packet.FlagAck) && p.Ack == seq.Add(e.iss, 1)
		})
		if err == StageClose {
			return err
		} else if err != nil {
			return newHandshakeError("awaiting SYN+ACK failed", e.State(), attempt, err)
		} else if synAck == nil {
			e.setState(StateClosed)
			continue
		}

		next := seq.Add(synAck.Seq, 1)
		if err := e.sendPacket(packet.FlagAck, seq.Add(e.iss, 1), next, nil); err != nil {
			return newHandshakeError("sending ACK failed", e.State(), attempt, err)
		}

		e.establish(next)
		return nil
	}

	return newHandshakeError("no SYN+ACK received", e.State(), e.config.HandshakeAttempts, nil)
}

func (hs *HandshakeStage) handleListener() error {
	e := hs.engine

	syn, addr, err := hs.await(0, func(p *packet.Packet) bool {
		return p.Flags == packet.FlagSyn
	})
	if err != nil {
		return err
	}

	// The first SYN's sender becomes the peer; datagrams from other addresses are dropped from now on.
	e.peer = addr
	e.peerPort = addrPort(addr)

	next := seq.Add(syn.Seq, 1)
	e.setState(StateSynReceived)

	for attempt := 1; attempt <= e.config.HandshakeAttempts; attempt++ {
		if err := e.sendPacket(packet.FlagSyn|packet.FlagAck, e.iss, next, nil); err != nil {
			return newHandshakeError("sending SYN+ACK failed", e.State(), attempt, err)
		}

		log.WithFields(log.Fields{
			"engine":  e,
			"attempt": attempt,
			"iss":     e.iss,
		}).Debug("Listener sent SYN+ACK")

		ack, _, err := hs.await(e.config.HandshakeTimeout, func(p *packet.Packet) bool {
			switch {
			case p.Flags == packet.FlagSyn:
				// A retransmitted SYN; answer right away with the next attempt.
				return true
			case p.HasFlags(packet.FlagSyn):
				return false
			case p.HasFlags(packet.FlagAck):
				return p.Ack == seq.Add(e.iss, 1)
			default:
				// A data segment implies a lost ACK; the segment itself will be retransmitted.
				return p.Flags == 0 && p.Ack == seq.Add(e.iss, 1)
			}
		})
		if err == StageClose {
			return err
		} else if err != nil {
			return newHandshakeError("awaiting ACK failed", e.State(), attempt, err)
		} else if ack == nil || ack.Flags == packet.FlagSyn {
			continue
		}

		e.establish(next)
		return nil
	}

	return newHandshakeError("no ACK received", e.State(), e.config.HandshakeAttempts, nil)
}
