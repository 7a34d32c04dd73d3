// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"errors"
	"net"
	"time"
)

// Endpoint is the requester's view of a datagram transport, bound to one remote peer.
type Endpoint interface {
	// Send a single datagram to the peer.
	Send(datagram []byte) error

	// Receive the next datagram into buf. Receive blocks up to the configured timeout and returns an error with a
	// Timeout() method reporting true in case nothing arrived.
	Receive(buf []byte) (int, error)

	// SetTimeout configures the timeout for each following Receive call.
	SetTimeout(timeout time.Duration) error
}

// PacketListener is the responder's view of a datagram transport, receiving from and answering to multiple peers.
type PacketListener interface {
	// ReceiveFrom blocks up to the configured timeout for the next datagram. The same timeout semantics as for
	// Endpoint.Receive apply.
	ReceiveFrom(buf []byte) (int, net.Addr, error)

	// SendTo sends a single datagram to the given peer.
	SendTo(datagram []byte, addr net.Addr) error

	// SetTimeout configures the timeout for each following ReceiveFrom call.
	SetTimeout(timeout time.Duration) error

	// Close the underlying transport. A blocking ReceiveFrom should return.
	Close() error
}

// IsTimeout checks if an error was caused by an expired receive timeout.
func IsTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
