// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux
// +build !linux

package transport

import "syscall"

// listenControl does not set any socket options on non-Linux systems.
func listenControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
