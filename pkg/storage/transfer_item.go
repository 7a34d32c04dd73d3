// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Role of the local node within a transfer.
type Role string

const (
	// RoleRequester marks transfers fetched by this node.
	RoleRequester Role = "requester"

	// RoleResponder marks transfers served by this node.
	RoleResponder Role = "responder"
)

// TransferItem is the record of a finished, either completed or failed, transfer.
type TransferItem struct {
	Id string `badgerhold:"key" json:"id"`

	Role     Role   `json:"role"`
	Filename string `badgerholdIndex:"Filename" json:"filename"`
	Peer     string `json:"peer"`

	Bytes           uint64 `json:"bytes"`
	Packets         uint64 `json:"packets"`
	Attempts        int    `json:"attempts,omitempty"`
	Retransmissions uint64 `json:"retransmissions"`

	Started time.Time     `badgerholdIndex:"Started" json:"started"`
	Elapsed time.Duration `json:"elapsed"`

	Fingerprint string `json:"fingerprint,omitempty"`
	Complete    bool   `json:"complete"`
	Reason      string `json:"reason,omitempty"`
}

// NewTransferItem creates a TransferItem, identified by its role, peer, file name and start time.
func NewTransferItem(role Role, peer, filename string, started time.Time) TransferItem {
	return TransferItem{
		Id:       transferId(role, peer, filename, started),
		Role:     role,
		Filename: filename,
		Peer:     peer,
		Started:  started,
	}
}

func transferId(role Role, peer, filename string, started time.Time) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s\x00%d", role, peer, filename, started.UnixNano())))
	return fmt.Sprintf("%x", h[:12])
}

func (ti TransferItem) String() string {
	state := "failed"
	if ti.Complete {
		state = "complete"
	}
	return fmt.Sprintf("%s %s %q with %s, %s", ti.Role, state, ti.Filename, ti.Peer, ti.Elapsed)
}
