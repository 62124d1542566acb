// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces CMU-TCP Listeners through UDP multicast, so Initiators can find them on the local
// network without knowing their address.
package discovery

const (
	// address4 is the default multicast IPv4 address used for discovery.
	address4 = "224.0.154.41"

	// address6 is the default multicast IPv6 address used for discovery.
	address6 = "ff02::1544:1"

	// port is the default multicast UDP port used for discovery.
	port = 35441
)
