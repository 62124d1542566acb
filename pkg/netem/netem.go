// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package netem emulates an unreliable network on top of a net.PacketConn.
//
// A wrapped connection drops, delays and reorders outbound datagrams according to a Profile. Inbound datagrams are
// passed through unchanged; wrap both peers to impair both directions.
package netem

import (
	"math/rand"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Profile of an emulated link.
type Profile struct {
	// Loss is the probability in [0, 1] of dropping a datagram.
	Loss float64

	// Delay is added to each datagram.
	Delay time.Duration

	// Jitter is a uniformly distributed extra delay in [0, Jitter). Datagrams might be reordered.
	Jitter time.Duration

	// Seed for the random source. Equal seeds result in equal loss patterns.
	Seed int64

	// Drop is consulted for each datagram before the random loss. A datagram is dropped if it returns true.
	Drop func(datagram []byte) bool
}

// Counters of a Conn.
type Counters struct {
	Written uint64
	Dropped uint64
	Delayed uint64
}

// Conn is a net.PacketConn whose writes pass through an emulated link.
type Conn struct {
	net.PacketConn

	profile Profile

	mutex    sync.Mutex
	rng      *rand.Rand
	counters Counters
	closed   bool

	pending sync.WaitGroup
}

// Wrap a net.PacketConn.
func Wrap(conn net.PacketConn, profile Profile) *Conn {
	return &Conn{
		PacketConn: conn,
		profile:    profile,
		rng:        rand.New(rand.NewSource(profile.Seed)),
	}
}

// Listen on a local UDP address and wrap the socket, e.g., "127.0.0.1:0".
func Listen(address string, profile Profile) (*Conn, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, err
	}
	return Wrap(conn, profile), nil
}

// WriteTo passes p through the emulated link. Dropped datagrams are reported as written.
func (c *Conn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mutex.Lock()

	if c.closed {
		c.mutex.Unlock()
		return 0, net.ErrClosed
	}

	if (c.profile.Drop != nil && c.profile.Drop(p)) || c.rng.Float64() < c.profile.Loss {
		c.counters.Dropped++
		c.mutex.Unlock()

		log.WithFields(log.Fields{
			"local":  c.LocalAddr(),
			"remote": addr,
			"len":    len(p),
		}).Debug("netem dropped a datagram")
		return len(p), nil
	}

	delay := c.profile.Delay
	if c.profile.Jitter > 0 {
		delay += time.Duration(c.rng.Int63n(int64(c.profile.Jitter)))
	}

	c.counters.Written++
	if delay <= 0 {
		c.mutex.Unlock()
		return c.PacketConn.WriteTo(p, addr)
	}

	c.counters.Delayed++
	c.pending.Add(1)
	c.mutex.Unlock()

	buf := make([]byte, len(p))
	copy(buf, p)
	time.AfterFunc(delay, func() {
		defer c.pending.Done()

		if _, err := c.PacketConn.WriteTo(buf, addr); err != nil {
			log.WithFields(log.Fields{
				"local":  c.LocalAddr(),
				"remote": addr,
				"error":  err,
			}).Debug("netem failed to write a delayed datagram")
		}
	})

	return len(p), nil
}

// Counters returns a copy of this Conn's counters.
func (c *Conn) Counters() Counters {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.counters
}

// Close waits for delayed datagrams in flight and closes the underlying connection.
func (c *Conn) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return net.ErrClosed
	}
	c.closed = true
	c.mutex.Unlock()

	c.pending.Wait()
	return c.PacketConn.Close()
}
