// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces responders and finds them through UDP multicast packages.
package discovery

const (
	// address4 is the multicast IPv4 group of rft announcements.
	address4 = "224.23.23.23"

	// address6 is the default multicast IPv6 address used for discovery.
	address6 = "ff02::23"

	// port is the default multicast UDP port used for discovery.
	port = 35051
)
