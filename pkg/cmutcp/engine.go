// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"errors"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/neptune-me/computer-network-pj2/pkg/packet"
	"github.com/neptune-me/computer-network-pj2/pkg/seq"
)

// Engine is the state of a connection shared by its Stages. Except for the state and the published Stats, it is only
// accessed from the StageHandler's goroutine.
type Engine struct {
	config Config
	role   Role

	conn      net.PacketConn
	peer      net.Addr
	localPort uint16
	peerPort  uint16

	state uint32
	iss   uint32

	snd *sendWindow
	rcv *recvWindow
	rtt rttEstimator

	lastProgress time.Time

	app     *appBuffers
	readBuf []byte

	stats      Stats
	statsMutex sync.Mutex
	published  Stats

	// stageError reports back the failure of a stage.
	stageError error
}

func newEngine(role Role, conn net.PacketConn, peer net.Addr, config Config, app *appBuffers) *Engine {
	iss := rand.Uint32()
	if config.InitialSequence != nil {
		iss = config.InitialSequence()
	}

	e := &Engine{
		config:    config,
		role:      role,
		conn:      conn,
		peer:      peer,
		localPort: addrPort(conn.LocalAddr()),
		peerPort:  addrPort(peer),
		iss:       iss,
		rtt:       newRTTEstimator(config.InitialRTT),
		app:       app,
		readBuf:   make([]byte, 0xFFFF),
	}

	if role == Initiator {
		e.state = uint32(StateClosed)
	} else {
		e.state = uint32(StateListen)
	}

	e.stats.Role = role
	e.stats.LocalAddr = conn.LocalAddr().String()
	if peer != nil {
		e.stats.RemoteAddr = peer.String()
	}
	e.publish()

	return e
}

func addrPort(addr net.Addr) uint16 {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return uint16(udpAddr.Port)
	}
	return 0
}

// State of this Engine's handshake; safe for concurrent use.
func (e *Engine) State() State {
	return State(atomic.LoadUint32(&e.state))
}

// setState changes the state along the handshake's state graph.
func (e *Engine) setState(to State) {
	from := e.State()
	if from == to {
		return
	}

	if !validTransition(from, to) {
		log.WithFields(log.Fields{
			"engine": e,
			"from":   from,
			"to":     to,
		}).Warn("Engine ignores an invalid state transition")
		return
	}

	atomic.StoreUint32(&e.state, uint32(to))

	log.WithFields(log.Fields{
		"engine": e,
		"from":   from,
		"to":     to,
	}).Debug("Engine changed its state")
}

func (e *Engine) String() string {
	peer := "?"
	if e.peer != nil {
		peer = e.peer.String()
	}
	return e.role.String() + "(" + e.conn.LocalAddr().String() + "<->" + peer + ")"
}

// establish the windows after a successful handshake. next is the peer's first data sequence number.
func (e *Engine) establish(next uint32) {
	start := seq.Add(e.iss, 1)
	segSize := e.config.SegmentSize()

	e.snd = newSendWindow(e.config.WindowSegments, e.config.WindowBytes(), start)
	e.rcv = newRecvWindow(e.config.WindowSegments, uint32(segSize), next)
	e.lastProgress = time.Now()

	e.setState(StateEstablished)
	e.publish()

	log.WithFields(log.Fields{
		"engine":   e,
		"iss":      e.iss,
		"peer-iss": next - 1,
	}).Info("Connection established")
}

// sendPacket to the peer.
func (e *Engine) sendPacket(flags packet.Flags, seqNo, ackNo uint32, payload []byte) error {
	var ext []byte
	if e.config.Checksum && len(payload) > 0 {
		ext = packet.ChecksumExtension(payload)
	}

	p, err := packet.Build(e.localPort, e.peerPort, seqNo, ackNo, flags, e.config.AdvertisedWindow, ext, payload)
	if err != nil {
		return err
	}

	data, err := p.Bytes()
	if err != nil {
		return err
	}

	if e.config.Tracer != nil {
		e.config.Tracer.Trace(true, e.conn.LocalAddr(), e.peer, data)
	}

	if _, err := e.conn.WriteTo(data, e.peer); err != nil {
		return pkgerrors.Wrapf(err, "sending %v failed", p)
	}
	return nil
}

// sendAck carrying the next expected sequence number.
func (e *Engine) sendAck() error {
	e.stats.AcksSent++
	return e.sendPacket(packet.FlagAck, e.snd.maxSent, e.rcv.Next(), nil)
}

// receive the next valid packet from the peer within timeout. A nil packet without an error is returned on timeout
// and for each dropped datagram.
func (e *Engine) receive(timeout time.Duration) (*packet.Packet, net.Addr, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, pkgerrors.Wrap(err, "setting read deadline failed")
	}

	n, addr, err := e.conn.ReadFrom(e.readBuf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil, nil
		}
		return nil, nil, pkgerrors.Wrap(err, "reading from socket failed")
	}

	datagram := e.readBuf[:n]
	if e.config.Tracer != nil {
		e.config.Tracer.Trace(false, e.conn.LocalAddr(), addr, datagram)
	}

	if e.peer != nil && addr.String() != e.peer.String() {
		e.drop(addr, errors.New("datagram from a foreign address"))
		return nil, nil, nil
	}

	p, err := packet.Parse(datagram)
	if err == nil {
		err = p.VerifyChecksum()
	}
	if err != nil {
		e.drop(addr, err)
		return nil, nil, nil
	}

	return p, addr, nil
}

func (e *Engine) drop(addr net.Addr, reason error) {
	e.stats.Dropped++

	log.WithFields(log.Fields{
		"engine": e,
		"from":   addr,
		"error":  reason,
	}).Debug("Engine dropped a datagram")
}

// poll the socket once and process an arriving packet.
func (e *Engine) poll() error {
	p, _, err := e.receive(e.config.PollInterval)
	if err != nil || p == nil {
		return err
	}
	return e.handlePacket(p)
}

// handlePacket of an established connection.
func (e *Engine) handlePacket(p *packet.Packet) error {
	switch {
	case p.HasFlags(packet.FlagSyn | packet.FlagAck):
		// Our final handshake ACK got lost.
		if e.role == Initiator {
			return e.sendPacket(packet.FlagAck, seq.Add(e.iss, 1), e.rcv.Next(), nil)
		}
		return nil

	case p.HasFlags(packet.FlagSyn):
		log.WithFields(log.Fields{
			"engine": e,
			"packet": p,
		}).Debug("Engine ignores a SYN on an established connection")
		return nil

	case p.HasFlags(packet.FlagAck):
		e.handleAck(p)
		return nil

	case p.Flags == 0:
		return e.handleData(p)

	default:
		return nil
	}
}

// handleAck moves the send window forward and feeds the RTT estimator.
func (e *Engine) handleAck(p *packet.Packet) {
	e.stats.AcksReceived++

	now := time.Now()
	advanced, sample, sampled := e.snd.Ack(p.Ack, now)
	if !advanced {
		return
	}

	e.lastProgress = now
	if sampled {
		e.rtt.Sample(sample)
	}
}

// handleData stores a segment in the receive window, delivers contiguous data and acknowledges cumulatively.
func (e *Engine) handleData(p *packet.Packet) error {
	if len(p.Payload) == 0 {
		return nil
	}
	e.stats.SegmentsReceived++

	if err := e.rcv.Store(p.Seq, p.Payload); err != nil {
		if !errors.Is(err, seq.ErrOutOfWindow) {
			return err
		}
		e.stats.Duplicates++
	}

	next := e.rcv.Contiguous()
	before := e.rcv.Next()
	err := e.rcv.Deliver(next, e.app.deliver)
	switch {
	case errors.Is(err, ErrBufferExhausted):
		log.WithFields(log.Fields{
			"engine":    e,
			"withheld":  seq.Distance(before, next),
			"delivered": before,
		}).Debug("Engine withholds data, the application buffer is full")

	case err != nil:
		return err

	default:
		e.stats.BytesDelivered += uint64(seq.Distance(before, e.rcv.Next()))
		e.app.signal()
	}

	return e.sendAck()
}

// retransmit an expired segment unchanged.
func (e *Engine) retransmit(slot sendSlot) error {
	e.stats.Retransmissions++

	log.WithFields(log.Fields{
		"engine": e,
		"seq":    slot.seq,
		"len":    len(slot.payload),
		"rto":    e.rtt.RTO(),
		"tx":     slot.transmissions + 1,
	}).Debug("Engine retransmits a segment")

	return e.sendPacket(0, slot.seq, e.rcv.Next(), slot.payload)
}

// send data through the send window and return after the peer acknowledged all of it.
func (e *Engine) send(data []byte, closeChan <-chan struct{}) error {
	if len(data) == 0 {
		return nil
	}

	// Every earlier buffer was fully acknowledged, so the last ACK marks the end of the sent stream.
	end := seq.Add(e.snd.lastAck, len(data))
	segSize := e.config.SegmentSize()
	offset := 0

	e.lastProgress = time.Now()

	for !e.snd.Acked(end) {
		select {
		case <-closeChan:
			return StageClose
		default:
		}

		now := time.Now()
		for offset < len(data) {
			n := len(data) - offset
			if n > segSize {
				n = segSize
			}
			if room := e.snd.Room(); n > room {
				n = room
			}
			if n <= 0 {
				break
			}

			slot := e.snd.Push(data[offset:offset+n], now)
			e.stats.SegmentsSent++
			if err := e.sendPacket(0, slot.seq, e.rcv.Next(), slot.payload); err != nil {
				return err
			}
			offset += n
		}

		if err := e.poll(); err != nil {
			return err
		}

		threshold := e.rtt.RetransmitAfter(e.config.RetransmitCeiling)
		if err := e.snd.Expired(time.Now(), threshold, e.retransmit); err != nil {
			return err
		}

		if stall := e.config.StallTimeout; stall > 0 && time.Since(e.lastProgress) > stall {
			return pkgerrors.Wrapf(ErrPeerUnreachable, "%d bytes unacknowledged for %v", e.snd.InFlight(), stall)
		}

		e.publish()
	}

	return nil
}

// linger answers the peer after the application's data was sent, until the connection was quiet for the configured
// linger duration. This covers lost acknowledgements for the peer's last segments.
func (e *Engine) linger(closeChan <-chan struct{}) error {
	quietSince := time.Now()
	for time.Since(quietSince) < e.config.Linger {
		select {
		case <-closeChan:
			return StageClose
		default:
		}

		p, _, err := e.receive(e.config.PollInterval)
		if err != nil {
			return err
		} else if p == nil {
			continue
		}

		quietSince = time.Now()
		if err := e.handlePacket(p); err != nil {
			return err
		}
	}
	return nil
}

// publish a Stats snapshot for other goroutines.
func (e *Engine) publish() {
	e.stats.State = e.State()
	if e.snd != nil {
		e.stats.LastAckReceived = e.snd.lastAck
		e.stats.MaxSequenceSent = e.snd.maxSent
		e.stats.InFlight = e.snd.InFlight()
	}
	if e.rcv != nil {
		e.stats.NextSequenceExpected = e.rcv.Next()
	}
	if e.peer != nil {
		e.stats.RemoteAddr = e.peer.String()
	}
	e.stats.EstimatedRTT = e.rtt.estimated
	e.stats.DeviationRTT = e.rtt.deviation
	e.stats.RTO = e.rtt.rto
	e.stats.RTTSamples = e.rtt.samples

	e.statsMutex.Lock()
	e.published = e.stats
	e.statsMutex.Unlock()
}

// Stats returns the last published snapshot; safe for concurrent use.
func (e *Engine) Stats() Stats {
	e.statsMutex.Lock()
	defer e.statsMutex.Unlock()

	return e.published
}

// closeSocket and combine its error with a previous one.
func (e *Engine) closeSocket(prev error) error {
	cErr := e.conn.Close()
	switch {
	case cErr == nil:
		return prev
	case prev == nil:
		return cErr
	default:
		return multierror.Append(prev, cErr)
	}
}
