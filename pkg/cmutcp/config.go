// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmutcp

import (
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/neptune-me/computer-network-pj2/pkg/packet"
)

const (
	// InitialWindowSize is the default send and receive window in bytes.
	InitialWindowSize = packet.MSS * 16

	// InitialSSThresh is a placeholder for a slow start threshold. There is no congestion control.
	InitialSSThresh = packet.MSS * 64

	// InitialRTT is the round-trip time estimate before the first sample.
	InitialRTT = 3000 * time.Millisecond

	// InitialAdvertised is the default advertised window of all packets.
	InitialAdvertised = packet.MSS

	// MaxNetworkBuffer is the requested size of the UDP socket's kernel buffers.
	MaxNetworkBuffer = 65535
)

// Tracer gets each datagram sent or received by a connection, e.g., to write a packet capture.
type Tracer interface {
	Trace(outbound bool, local, remote net.Addr, datagram []byte)
}

// Config of a connection. The zero value is not usable; start from DefaultConfig.
type Config struct {
	// WindowSegments is the number of segments in both the send and the receive window.
	WindowSegments int

	// Checksum adds a CRC-16 over the payload to each data segment. Both peers must agree on this setting, because
	// it reduces the segment size.
	Checksum bool

	// AdvertisedWindow is put into each packet's header.
	AdvertisedWindow uint16

	// InitialRTT is the round-trip time estimate until the first sample.
	InitialRTT time.Duration

	// RetransmitCeiling caps the retransmission threshold of three times the RTO.
	RetransmitCeiling time.Duration

	// HandshakeTimeout is the time to wait for a reply to a SYN or SYN+ACK.
	HandshakeTimeout time.Duration

	// HandshakeAttempts limits how often a SYN or SYN+ACK is sent before the connection fails.
	HandshakeAttempts int

	// PollInterval is the longest time the driver blocks on the socket within one iteration.
	PollInterval time.Duration

	// ReadTimeout is used by reads in ReadTimeout mode.
	ReadTimeout time.Duration

	// StallTimeout is the time without any acknowledgement progress after which outstanding data is given up and the
	// connection fails. Zero waits forever.
	StallTimeout time.Duration

	// Linger keeps answering the peer after Close until no datagram arrived for this duration. It must exceed the
	// peer's retransmission threshold, otherwise a lost final acknowledgement is never repeated and the peer stalls.
	// Zero returns as soon as all staged data was acknowledged.
	Linger time.Duration

	// MaxBuffer limits both the staged outbound bytes and the delivered inbound bytes.
	MaxBuffer int

	// InitialSequence generates the initial sequence number. A random number is used if nil.
	InitialSequence func() uint32

	// Tracer is an optional packet tracer.
	Tracer Tracer
}

// DefaultRetransmitCeiling caps the retransmission threshold.
const DefaultRetransmitCeiling = 3000 * time.Millisecond

// DefaultConfig returns a Config based on the protocol's grading constants.
func DefaultConfig() Config {
	return Config{
		WindowSegments:    InitialWindowSize / packet.MSS,
		Checksum:          false,
		AdvertisedWindow:  InitialAdvertised,
		InitialRTT:        InitialRTT,
		RetransmitCeiling: DefaultRetransmitCeiling,
		HandshakeTimeout:  3 * time.Second,
		HandshakeAttempts: 10,
		PollInterval:      time.Millisecond,
		ReadTimeout:       3 * time.Second,
		StallTimeout:      time.Minute,
		Linger:            2 * DefaultRetransmitCeiling,
		MaxBuffer:         64 * 1024 * 1024,
	}
}

// SegmentSize is the largest payload of a data segment.
func (c Config) SegmentSize() int {
	if c.Checksum {
		return packet.MSS - packet.ChecksumExtLen
	}
	return packet.MSS
}

// WindowBytes is the size of the send and receive window in bytes.
func (c Config) WindowBytes() uint32 {
	return uint32(c.WindowSegments * c.SegmentSize())
}

// Validate this Config. All violations are reported together.
func (c Config) Validate() (err error) {
	if c.WindowSegments < 1 {
		err = multierror.Append(err, fmt.Errorf("window must hold at least one segment, not %d", c.WindowSegments))
	} else if c.WindowBytes() >= 1<<30 {
		err = multierror.Append(err, fmt.Errorf("window of %d bytes exceeds the sequence space", c.WindowBytes()))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"initial RTT", c.InitialRTT},
		{"retransmit ceiling", c.RetransmitCeiling},
		{"handshake timeout", c.HandshakeTimeout},
		{"poll interval", c.PollInterval},
		{"read timeout", c.ReadTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			err = multierror.Append(err, fmt.Errorf("%s must be positive, not %v", d.name, d.value))
		}
	}

	if c.StallTimeout < 0 {
		err = multierror.Append(err, fmt.Errorf("stall timeout must not be negative, not %v", c.StallTimeout))
	}
	if c.Linger < 0 {
		err = multierror.Append(err, fmt.Errorf("linger must not be negative, not %v", c.Linger))
	}
	if c.HandshakeAttempts < 1 {
		err = multierror.Append(err, fmt.Errorf("at least one handshake attempt is required, not %d", c.HandshakeAttempts))
	}
	if c.MaxBuffer < c.SegmentSize() {
		err = multierror.Append(err, fmt.Errorf("buffer limit of %d bytes is below one segment", c.MaxBuffer))
	}

	return
}
