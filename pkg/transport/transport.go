// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"net"
	"time"
)

// Conn is a datagram transport bound to one peer. It satisfies the rft.Endpoint interface.
type Conn interface {
	Send(datagram []byte) error
	Receive(buf []byte) (int, error)
	SetTimeout(timeout time.Duration) error
	Close() error
}

// Listener is a datagram transport for multiple peers. It satisfies the rft.PacketListener interface.
type Listener interface {
	ReceiveFrom(buf []byte) (int, net.Addr, error)
	SendTo(datagram []byte, addr net.Addr) error
	SetTimeout(timeout time.Duration) error
	Close() error
}
