// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxAttempts is returned when a RetryPolicy's MaxAttempts were used up without receiving the first Packet.
	ErrMaxAttempts = errors.New("maximum number of attempts exceeded")

	// ErrStalled is returned when the peer stayed silent for more than MaxStalls consecutive timeouts mid-stream.
	ErrStalled = errors.New("transfer stalled")

	// ErrSegmentSize is reported for a datagram exceeding the configured segment size. The peers' segment sizes
	// differ and the payload would have been truncated.
	ErrSegmentSize = errors.New("datagram exceeds the segment size")
)

// TransferError describes a failed transfer. Op names the failed operation, e.g., "send", "receive" or "write".
type TransferError struct {
	Filename string
	Attempt  int
	Op       string
	Cause    error
}

func newTransferError(filename string, attempt int, op string, cause error) *TransferError {
	return &TransferError{
		Filename: filename,
		Attempt:  attempt,
		Op:       op,
		Cause:    cause,
	}
}

func (err *TransferError) Error() string {
	return fmt.Sprintf("transfer of %q failed in attempt %d on %s: %v", err.Filename, err.Attempt, err.Op, err.Cause)
}

func (err *TransferError) Unwrap() error {
	return err.Cause
}
