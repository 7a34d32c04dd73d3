// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// The socket options are based on the Linux socket(7) manual page.
// <https://man7.org/linux/man-pages/man7/socket.7.html>

// listenControl is the net.ListenConfig's Control function to set the socket options.
func listenControl(_, _ string, rawConn syscall.RawConn) (err error) {
	const (
		// listenReuseAddr sets SO_REUSEADDR, allowing a restarted responder to bind its port again.
		listenReuseAddr int = 1

		// listenRcvBuf sets SO_RCVBUF, the receive buffer size in bytes. The kernel doubles this value.
		listenRcvBuf int = 1 << 20
	)

	opts := map[int]int{
		unix.SO_REUSEADDR: listenReuseAddr,
		unix.SO_RCVBUF:    listenRcvBuf,
	}

	ctrlErr := rawConn.Control(func(fd uintptr) {
		for opt, value := range opts {
			err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, value)
			if err != nil {
				return
			}
		}
	})
	if err == nil {
		err = ctrlErr
	}

	return
}
