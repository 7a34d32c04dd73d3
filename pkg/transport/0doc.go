// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport provides unreliable datagram transports for the rft package.
//
// Each Conn is bound to one peer and serves a requester, each Listener answers multiple peers and serves a responder.
// Besides the UDP transport, datagrams can be exchanged as unreliable QUIC datagrams or broadcasted over a LoRa
// rf95modem. The in-memory Hub and the Lossy wrapper emulate lossy links for tests and experiments.
//
// All receive operations report an expired timeout as an error with a Timeout method returning true.
package transport
