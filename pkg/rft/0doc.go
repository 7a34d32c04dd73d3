// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package rft implements a stop-and-wait reliable file transfer on top of an unreliable datagram transport.

A Requester asks a remote Responder for a file by sending the plain file name as one datagram. The Responder answers
with Packets, each carrying a sequence number and up to one maximum segment of the file. The stream is closed by a
Packet without payload whose sequence number equals the amount of data Packets sent before.

	 0                   1                   2                   3
	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	+---------------------------------------------------------------+
	|                 Sequence Number (64 bit, LE)                  |
	|                                                               |
	+---------------------------------------------------------------+
	|                    Payload (0..MSS octets)                    |
	+---------------------------------------------------------------+

The Requester accepts Packets strictly in order. An accepted Packet is acknowledged by echoing its sequence number
without payload. An unexpected Packet is answered with the last good sequence number, which asks the Responder to
resend the Packet following it. If the very first Packet of an attempt cannot be accepted, the whole request is sent
again.

The Responder is a pure state machine. The Server binds it to a PacketListener and serves one transfer at a time.
*/
package rft
