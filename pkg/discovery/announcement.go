// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// TransportType names the transport of an announced responder.
type TransportType uint64

const (
	// UDP is the plain datagram transport.
	UDP TransportType = 1

	// QUIC exchanges unreliable QUIC datagrams.
	QUIC TransportType = 2
)

// CheckValid checks if this TransportType is known.
func (tt TransportType) CheckValid() error {
	switch tt {
	case UDP, QUIC:
		return nil
	default:
		return fmt.Errorf("unknown transport type %d", uint64(tt))
	}
}

func (tt TransportType) String() string {
	switch tt {
	case UDP:
		return "udp"
	case QUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// Announcement of some node's responder.
type Announcement struct {
	Transport   TransportType
	Node        string
	Port        uint
	SegmentSize uint
}

// UnmarshalAnnouncements creates a new array of Announcement based on a CBOR byte string.
func UnmarshalAnnouncements(data []byte) (announcements []Announcement, err error) {
	buff := bytes.NewBuffer(data)

	if l, cErr := cboring.ReadArrayLength(buff); cErr != nil {
		err = cErr
		return
	} else {
		announcements = make([]Announcement, l)
	}

	for i := 0; i < len(announcements); i++ {
		if cErr := cboring.Unmarshal(&announcements[i], buff); cErr != nil {
			err = fmt.Errorf("unmarshalling Announcement %d failed: %v", i, cErr)
			return
		}
	}

	return
}

// MarshalAnnouncements into a CBOR byte string.
func MarshalAnnouncements(announcements []Announcement) (data []byte, err error) {
	buff := new(bytes.Buffer)

	if cErr := cboring.WriteArrayLength(uint64(len(announcements)), buff); cErr != nil {
		err = cErr
		return
	}

	for i := range announcements {
		announcement := announcements[i]
		if cErr := cboring.Marshal(&announcement, buff); cErr != nil {
			err = fmt.Errorf("marshalling Announcement %d (%v) failed: %v", i, announcement, cErr)
			return
		}
	}

	data = buff.Bytes()
	return
}

// MarshalCbor creates a CBOR representation for an Announcement.
func (announcement *Announcement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(announcement.Transport), w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(announcement.Node, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(announcement.Port), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(announcement.SegmentSize), w); err != nil {
		return err
	}

	return nil
}

// UnmarshalCbor creates an Announcement from its CBOR representation.
func (announcement *Announcement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 4 {
		return fmt.Errorf("wrong array length: %d instead of 4", l)
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if tt := TransportType(n); tt.CheckValid() != nil {
		return tt.CheckValid()
	} else {
		announcement.Transport = tt
	}
	if node, err := cboring.ReadTextString(r); err != nil {
		return fmt.Errorf("unmarshalling node failed: %v", err)
	} else {
		announcement.Node = node
	}
	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		announcement.Port = uint(n)
	}
	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		announcement.SegmentSize = uint(n)
	}

	return nil
}

func (announcement Announcement) String() string {
	return fmt.Sprintf("Announcement(%v,%s,%d,%d)",
		announcement.Transport, announcement.Node, announcement.Port, announcement.SegmentSize)
}
