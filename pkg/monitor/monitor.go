// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package monitor exposes the statistics of CMU-TCP connections over HTTP.
//
// GET /connections lists all registered connections, GET /connections/{name} a single one. /ws upgrades to a
// WebSocket, which receives a JSON snapshot of all connections periodically.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/neptune-me/computer-network-pj2/pkg/cmutcp"
)

// Source of connection statistics, e.g., a *cmutcp.Conn.
type Source interface {
	Stats() cmutcp.Stats
}

// Monitor is a http.Handler serving the statistics of registered Sources.
type Monitor struct {
	router   *mux.Router
	upgrader websocket.Upgrader
	interval time.Duration

	sourcesMutex sync.RWMutex
	sources      map[string]Source

	server    *http.Server
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewMonitor creates a Monitor whose WebSocket clients get a snapshot every interval.
func NewMonitor(interval time.Duration) (m *Monitor) {
	m = &Monitor{
		router:    mux.NewRouter(),
		upgrader:  websocket.Upgrader{},
		interval:  interval,
		sources:   make(map[string]Source),
		closeChan: make(chan struct{}),
	}

	m.router.HandleFunc("/connections", m.handleList).Methods(http.MethodGet)
	m.router.HandleFunc("/connections/{name}", m.handleSingle).Methods(http.MethodGet)
	m.router.HandleFunc("/ws", m.handleWebSocket)

	return
}

// Register a Source by its name. An existing Source of the same name is replaced.
func (m *Monitor) Register(name string, src Source) {
	m.sourcesMutex.Lock()
	defer m.sourcesMutex.Unlock()

	m.sources[name] = src
}

// Unregister a Source.
func (m *Monitor) Unregister(name string) {
	m.sourcesMutex.Lock()
	defer m.sourcesMutex.Unlock()

	delete(m.sources, name)
}

// Snapshot of all registered Sources.
func (m *Monitor) Snapshot() map[string]cmutcp.Stats {
	m.sourcesMutex.RLock()
	defer m.sourcesMutex.RUnlock()

	snapshot := make(map[string]cmutcp.Stats, len(m.sources))
	for name, src := range m.sources {
		snapshot[name] = src.Stats()
	}
	return snapshot
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write monitor response")
	}
}

// handleList processes /connections GET requests.
func (m *Monitor) handleList(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, http.StatusOK, m.Snapshot())
}

// handleSingle processes /connections/{name} GET requests.
func (m *Monitor) handleSingle(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.sourcesMutex.RLock()
	src, ok := m.sources[name]
	m.sourcesMutex.RUnlock()

	if !ok {
		m.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown connection " + name})
		return
	}
	m.writeJSON(w, http.StatusOK, src.Stats())
}

// handleWebSocket streams snapshots until the client leaves or the Monitor is closed.
func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, connErr := m.upgrader.Upgrade(w, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}
	defer func() { _ = conn.Close() }()

	// Incoming messages are discarded; a read error signals a gone client.
	goneChan := make(chan struct{})
	go func() {
		defer close(goneChan)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(m.Snapshot()); err != nil {
			log.WithError(err).WithField("client", r.RemoteAddr).Debug("Monitor stops streaming to a client")
			return
		}

		select {
		case <-ticker.C:
		case <-goneChan:
			return
		case <-m.closeChan:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor closed"))
			return
		}
	}
}

// Start serving on address in the background.
func (m *Monitor) Start(address string) {
	m.server = &http.Server{
		Addr:    address,
		Handler: m,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).WithField("address", address).Warn("Monitor's HTTP server failed")
		}
	}()

	log.WithField("address", address).Info("Monitor started")
}

// Close this Monitor, its WebSocket streams and, if started, its HTTP server.
func (m *Monitor) Close() (err error) {
	m.closeOnce.Do(func() {
		close(m.closeChan)
		if m.server != nil {
			err = m.server.Close()
		}
	})
	return
}
