// SPDX-FileCopyrightText: 2024 Neptune
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package cmutcp

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenControl is the net.ListenConfig's Control function. It requests kernel buffers of MaxNetworkBuffer bytes for
// both directions, see socket(7).
func listenControl(_, _ string, rawConn syscall.RawConn) (err error) {
	opts := map[int]int{
		unix.SO_RCVBUF: MaxNetworkBuffer,
		unix.SO_SNDBUF: MaxNetworkBuffer,
	}

	ctrlErr := rawConn.Control(func(fd uintptr) {
		for opt, value := range opts {
			err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, value)
			if err != nil {
				return
			}
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}

	return
}

// listenUDP binds a UDP socket with adjusted buffer sizes.
func listenUDP(ctx context.Context, address string) (net.PacketConn, error) {
	lc := &net.ListenConfig{Control: listenControl}
	return lc.ListenPacket(ctx, "udp", address)
}
