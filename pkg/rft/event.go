// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"fmt"
	"time"
)

// EventType indicates the kind of an Event.
type EventType uint

const (
	_ EventType = iota

	// RequestReceived shows the start of a new transfer.
	RequestReceived

	// RequestRejected shows a request for an unknown or unreadable file. The Event's Err holds the reason.
	RequestRejected

	// TransferCompleted shows an acknowledged terminal Packet.
	TransferCompleted

	// TransferAbandoned shows a transfer which was given up, e.g., after the peer went silent or restarted its
	// request. The Event's Err holds the reason.
	TransferAbandoned
)

func (et EventType) String() string {
	switch et {
	case RequestReceived:
		return "Request Received"
	case RequestRejected:
		return "Request Rejected"
	case TransferCompleted:
		return "Transfer Completed"
	case TransferAbandoned:
		return "Transfer Abandoned"
	default:
		return "Unknown Type"
	}
}

// Event reports the lifecycle of a Server's transfers.
type Event struct {
	Type     EventType
	Peer     string
	Filename string

	Bytes           uint64
	Packets         uint64
	Retransmissions uint64

	Start   time.Time
	Elapsed time.Duration

	Err error
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%v for %q from %s: %v", e.Type, e.Filename, e.Peer, e.Err)
	}
	return fmt.Sprintf("%v for %q from %s", e.Type, e.Filename, e.Peer)
}
