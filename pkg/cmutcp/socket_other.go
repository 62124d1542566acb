// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux
// +build !linux

package cmutcp

import (
	"context"
	"net"
)

// listenUDP binds a UDP socket with the operating system's default buffer sizes.
func listenUDP(ctx context.Context, address string) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp", address)
}
