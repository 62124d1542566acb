// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

package appconf

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/neptune-me/computer-network-pj2/pkg/cmutcp"
	"github.com/neptune-me/computer-network-pj2/pkg/discovery"
	"github.com/neptune-me/computer-network-pj2/pkg/monitor"
	"github.com/neptune-me/computer-network-pj2/pkg/trace"
)

// Connection creates the connection configuration including the optional packet trace. The returned closer must be
// called after the connection was closed.
func (conf Config) Connection() (c cmutcp.Config, closer func() error, err error) {
	closer = func() error { return nil }

	if c, err = conf.CMUTCP(); err != nil {
		return
	}
	if conf.Trace.File == "" {
		return
	}

	w, wErr := trace.Create(conf.Trace.File)
	if wErr != nil {
		err = wErr
		return
	}

	log.WithField("file", conf.Trace.File).Info("Tracing packets")

	c.Tracer = w
	closer = w.Close
	return
}

// StartMonitor starts the HTTP monitor, if configured. Otherwise, nil is returned.
func (conf Config) StartMonitor() *monitor.Monitor {
	if conf.Monitor.Listen == "" {
		return nil
	}

	m := monitor.NewMonitor(conf.MonitorInterval())
	m.Start(conf.Monitor.Listen)
	return m
}

// Announce the server's Listener, if discovery is enabled. Otherwise, nil is returned.
func (conf Config) Announce() (*discovery.Manager, error) {
	dc := conf.Discovery
	if !dc.Enabled {
		return nil, nil
	}

	announcements := []discovery.Announcement{{
		Service:  dc.Service,
		Port:     uint(conf.Server.Port),
		Checksum: conf.Transport.Checksum,
	}}

	ignore := func(discovery.Peer) {}
	return discovery.NewManager(ignore, announcements, time.Duration(dc.Interval)*time.Second, dc.IPv4, dc.IPv6)
}
