// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
	"net"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = net.ErrClosed

// timeoutError is returned by transports without a native deadline on an expired receive timeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// errTimeout is the shared timeoutError instance.
var errTimeout error = timeoutError{}

// ResolveError is returned if a peer's or a local address cannot be resolved.
type ResolveError struct {
	Address string
	Cause   error
}

func newResolveError(address string, cause error) *ResolveError {
	return &ResolveError{
		Address: address,
		Cause:   cause,
	}
}

func (err *ResolveError) Error() string {
	return fmt.Sprintf("resolving %q failed: %v", err.Address, err.Cause)
}

func (err *ResolveError) Unwrap() error {
	return err.Cause
}

// IsResolveError checks if err was caused by a failed address resolution.
func IsResolveError(err error) bool {
	var re *ResolveError
	return errors.As(err, &re)
}
