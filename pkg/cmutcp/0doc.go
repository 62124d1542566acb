// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cmutcp implements CMU-TCP, a reliable and ordered byte stream on top of an unreliable datagram socket.
//
// A connection is opened either as an Initiator, which connects to a known peer, or as a Listener, which waits for the
// first peer to connect. Both sides perform a three-way handshake and afterwards exchange data through a sliding
// window of MSS-sized segments, acknowledged cumulatively and retransmitted after a timeout derived from the measured
// round-trip time.
//
// Each connection is driven by a single background goroutine. Applications interact with it through Conn, whose
// Write only stages data for this goroutine and whose Read returns reassembled, in-order data.
package cmutcp
