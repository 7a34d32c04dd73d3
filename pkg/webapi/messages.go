// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package webapi

import (
	"time"

	"github.com/dtn7/rft-go/pkg/rft"
)

// EventMessage is the JSON representation of an rft.Event.
type EventMessage struct {
	Type            string    `json:"type"`
	Peer            string    `json:"peer"`
	Filename        string    `json:"filename"`
	Bytes           uint64    `json:"bytes"`
	Packets         uint64    `json:"packets"`
	Retransmissions uint64    `json:"retransmissions"`
	Start           time.Time `json:"start"`
	ElapsedMillis   int64     `json:"elapsed_ms"`
	Error           string    `json:"error,omitempty"`
}

// NewEventMessage from an rft.Event.
func NewEventMessage(e rft.Event) EventMessage {
	msg := EventMessage{
		Type:            e.Type.String(),
		Peer:            e.Peer,
		Filename:        e.Filename,
		Bytes:           e.Bytes,
		Packets:         e.Packets,
		Retransmissions: e.Retransmissions,
		Start:           e.Start,
		ElapsedMillis:   e.Elapsed.Milliseconds(),
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	return msg
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
