// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet implements the CMU-TCP wire format.
//
// A packet consists of a fixed 25 byte header, optional extension data and the payload. All multi-byte integers are
// encoded in network byte order:
//
//	identifier (4) | source port (2) | destination port (2) | sequence number (4) | acknowledgement number (4) |
//	header length (2) | packet length (2) | flags (1) | advertised window (2) | extension length (2) |
//	extension data (extension length) | payload (packet length - header length)
//
// Packets are only created by New or Build and are only read by Unmarshal or Parse. The identifier is checked before
// any other field is trusted.
package packet
