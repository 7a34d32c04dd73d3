// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"encoding/binary"
	"fmt"
)

const (
	// SequenceNumberSize is the width of the sequence number field on the wire.
	SequenceNumberSize int = 8

	// DefaultSegmentSize is the default maximum payload of a single Packet.
	DefaultSegmentSize int = 8192

	// DefaultPort is the well-known port of the reliable transfer service.
	DefaultPort int = 4951
)

// Packet is either a data Packet, carrying a part of the requested file, or a control Packet, carrying only a
// sequence number. A data Packet without Payload marks the end of the stream.
type Packet struct {
	SequenceNumber uint64
	Payload        []byte
}

// NewDataPacket creates a new data Packet. An empty payload creates the terminal Packet.
func NewDataPacket(seq uint64, payload []byte) Packet {
	return Packet{
		SequenceNumber: seq,
		Payload:        payload,
	}
}

// NewControlPacket creates a Packet without payload, used for acknowledgements and retransmission requests.
func NewControlPacket(seq uint64) Packet {
	return Packet{SequenceNumber: seq}
}

// ParsePacket reads a Packet from a received datagram. The payload length is inferred from the datagram's length.
// The returned Packet's Payload references the given slice.
func ParsePacket(datagram []byte) (p Packet, err error) {
	if len(datagram) < SequenceNumberSize {
		err = fmt.Errorf("datagram of %d bytes is shorter than the sequence number field", len(datagram))
		return
	}

	p.SequenceNumber = binary.LittleEndian.Uint64(datagram[:SequenceNumberSize])
	if len(datagram) > SequenceNumberSize {
		p.Payload = datagram[SequenceNumberSize:]
	}
	return
}

// IsControlDatagram checks if a datagram has the shape of a control Packet.
func IsControlDatagram(datagram []byte) bool {
	return len(datagram) == SequenceNumberSize
}

// IsTerminal checks if this Packet closes a stream.
func (p Packet) IsTerminal() bool {
	return len(p.Payload) == 0
}

// Bytes serializes this Packet into a datagram.
func (p Packet) Bytes() []byte {
	buf := make([]byte, SequenceNumberSize+len(p.Payload))
	binary.LittleEndian.PutUint64(buf[:SequenceNumberSize], p.SequenceNumber)
	copy(buf[SequenceNumberSize:], p.Payload)
	return buf
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet(seq=%d, len=%d)", p.SequenceNumber, len(p.Payload))
}
