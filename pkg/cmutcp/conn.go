// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ReadMode controls how a read behaves while no data is available.
type ReadMode int

const (
	// ReadBlock waits until data is available or the connection ends.
	ReadBlock ReadMode = iota

	// ReadNoWait returns zero bytes right away.
	ReadNoWait

	// ReadTimeout waits up to Config.ReadTimeout and returns ErrTimeout afterwards.
	ReadTimeout
)

func (m ReadMode) String() string {
	switch m {
	case ReadBlock:
		return "block"
	case ReadNoWait:
		return "no-wait"
	case ReadTimeout:
		return "timeout"
	default:
		return "ReadMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Conn is a reliable, ordered byte stream to a single peer. Writes are staged and sent by a driver goroutine; reads
// consume the bytes delivered by it. Conn implements io.ReadWriteCloser.
type Conn struct {
	engine  *Engine
	handler *StageHandler
	app     *appBuffers

	done      chan struct{}
	driverErr error

	closeOnce sync.Once
	closeErr  error
}

// Open a connection. An Initiator connects from an ephemeral port to serverIP:port. A Listener binds serverIP:port
// and waits for the first Initiator. Open returns after the handshake finished or failed.
func Open(ctx context.Context, role Role, serverIP string, port int, config Config) (*Conn, error) {
	address := net.JoinHostPort(serverIP, strconv.Itoa(port))

	var (
		local string
		peer  net.Addr
	)
	if role == Initiator {
		peerAddr, err := net.ResolveUDPAddr("udp", address)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "resolving %s failed", address)
		}
		local, peer = ":0", peerAddr
	} else {
		local = address
	}

	pc, err := listenUDP(ctx, local)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "binding UDP socket on %s failed", local)
	}

	return OpenPacketConn(ctx, role, pc, peer, config)
}

// Dial a Listener at address, e.g., "10.0.1.1:15441".
func Dial(ctx context.Context, address string, config Config) (*Conn, error) {
	host, port, err := splitHostPort(address)
	if err != nil {
		return nil, err
	}
	return Open(ctx, Initiator, host, port, config)
}

// Listen on address for a single Initiator.
func Listen(ctx context.Context, address string, config Config) (*Conn, error) {
	host, port, err := splitHostPort(address)
	if err != nil {
		return nil, err
	}
	return Open(ctx, Listener, host, port, config)
}

func splitHostPort(address string) (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		err = pkgerrors.Wrapf(err, "invalid port in %s", address)
	}
	return
}

// OpenPacketConn runs a connection over an existing datagram socket. The peer is required for an Initiator and
// ignored for a Listener. The Conn takes ownership of pc; it is closed if the handshake fails and by Close.
func OpenPacketConn(ctx context.Context, role Role, pc net.PacketConn, peer net.Addr, config Config) (*Conn, error) {
	if err := config.Validate(); err != nil {
		_ = pc.Close()
		return nil, pkgerrors.Wrap(err, "invalid configuration")
	}
	if role == Initiator && peer == nil {
		_ = pc.Close()
		return nil, pkgerrors.New("an Initiator requires a peer address")
	} else if role == Listener {
		peer = nil
	}

	app := newAppBuffers(config.MaxBuffer)
	engine := newEngine(role, pc, peer, config, app)

	established := make(chan struct{})
	stages := []StageSetup{
		{
			Stage: &HandshakeStage{},
			PostHook: func(_ *StageHandler, _ *Engine) error {
				close(established)
				return nil
			},
		},
		{
			Stage: &EstablishedStage{},
		},
	}

	c := &Conn{
		engine:  engine,
		handler: NewStageHandler(stages, engine),
		app:     app,
		done:    make(chan struct{}),
	}
	go c.watch()

	select {
	case <-established:
		return c, nil

	case <-c.done:
		return nil, engine.closeSocket(c.driverErr)

	case <-ctx.Done():
		_ = c.handler.Close()
		<-c.done
		return nil, engine.closeSocket(ctx.Err())
	}
}

// watch the StageHandler until its end and propagate the outcome to readers and writers.
func (c *Conn) watch() {
	err := <-c.handler.Error()
	c.driverErr = err

	if err == nil || err == StageClose {
		c.app.finish(io.EOF, nil)
	} else {
		log.WithFields(log.Fields{
			"engine": c.engine,
			"error":  err,
		}).Warn("Connection failed")

		c.app.finish(err, err)
	}

	c.engine.publish()
	close(c.done)
}

// ReadMode reads delivered bytes into buf, waiting according to mode while nothing is available. After the
// connection ended and all delivered bytes were read, io.EOF or the connection's error is returned.
func (c *Conn) ReadMode(buf []byte, mode ReadMode) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	app := c.app
	app.recvMutex.Lock()
	defer app.recvMutex.Unlock()

	var deadline time.Time
	if mode == ReadTimeout {
		deadline = time.Now().Add(c.engine.config.ReadTimeout)
		timer := time.AfterFunc(c.engine.config.ReadTimeout, func() {
			app.recvMutex.Lock()
			app.readCond.Broadcast()
			app.recvMutex.Unlock()
		})
		defer timer.Stop()
	}

	for app.delivered.Len() == 0 {
		if app.readErr != nil {
			return 0, app.readErr
		}

		switch mode {
		case ReadNoWait:
			return 0, nil
		case ReadTimeout:
			if !time.Now().Before(deadline) {
				return 0, ErrTimeout
			}
		}

		app.readCond.Wait()
	}

	return app.delivered.Read(buf), nil
}

// Read blocks until data is available.
func (c *Conn) Read(buf []byte) (int, error) {
	return c.ReadMode(buf, ReadBlock)
}

// Write stages buf to be sent and returns immediately.
func (c *Conn) Write(buf []byte) (int, error) {
	if err := c.app.stage(buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Close waits until all written bytes were acknowledged by the peer, then closes the socket. Blocked readers return
// after the remaining delivered bytes were read. Close may be called multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.app.kill()
		<-c.done

		err := c.driverErr
		if err == StageClose {
			err = nil
		}
		c.closeErr = c.engine.closeSocket(err)

		log.WithFields(log.Fields{
			"engine": c.engine,
			"error":  c.closeErr,
		}).Info("Connection closed")
	})

	return c.closeErr
}

// LocalAddr of the underlying socket.
func (c *Conn) LocalAddr() net.Addr {
	return c.engine.conn.LocalAddr()
}

// RemoteAddr of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.engine.peer
}

// State of the handshake.
func (c *Conn) State() State {
	return c.engine.State()
}

// Stats returns a recent snapshot of the connection's counters.
func (c *Conn) Stats() Stats {
	return c.engine.Stats()
}
