// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"fmt"
	"io"
	"time"
)

// Responder produces the Packets of one file and reacts to the requester's control Packets.
//
// The Responder has exactly one outstanding Packet, its cursor. A control Packet for the cursor acknowledges it and
// advances to the next Packet. A control Packet for an older sequence number requests the outstanding Packet again.
// Newer sequence numbers are ignored.
//
// A Responder does no I/O on its own besides reading its source. It is not safe for concurrent use.
type Responder struct {
	source      io.Reader
	segmentSize int
	eof         bool

	current  Packet
	started  bool
	finished bool

	retransmitGuard time.Duration
	lastSent        time.Time
	now             func() time.Time

	bytes           uint64
	retransmissions uint64
}

// NewResponder for a source, split into Packets of up to segmentSize bytes.
func NewResponder(source io.Reader, segmentSize int) *Responder {
	return &Responder{
		source:      source,
		segmentSize: segmentSize,
		now:         time.Now,
	}
}

// SetRetransmitGuard configures a minimum interval between two transmissions caused by retransmission requests.
// Requests within this interval after the last transmission are dropped. This keeps a duplicating link from doubling
// the traffic for each duplicate. Zero disables the guard.
func (r *Responder) SetRetransmitGuard(guard time.Duration) {
	r.retransmitGuard = guard
}

func (r *Responder) String() string {
	return fmt.Sprintf("Responder(cursor=%d, finished=%t)", r.current.SequenceNumber, r.finished)
}

// nextPacket reads up to one segment from the source. A read without data results in the terminal Packet.
func (r *Responder) nextPacket(seq uint64) (p Packet, err error) {
	if r.eof {
		p = NewDataPacket(seq, nil)
		return
	}

	payload := make([]byte, r.segmentSize)
	n, rErr := io.ReadFull(r.source, payload)
	switch rErr {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		r.eof = true
	default:
		err = rErr
		return
	}

	if n == 0 {
		payload = nil
	}
	p = NewDataPacket(seq, payload[:n])
	r.bytes += uint64(n)
	return
}

// Start produces the first Packet. Start must be called exactly once.
func (r *Responder) Start() (p Packet, err error) {
	if r.started {
		err = fmt.Errorf("responder was already started")
		return
	}
	if r.segmentSize <= 0 {
		err = fmt.Errorf("segment size must be positive, not %d", r.segmentSize)
		return
	}

	if p, err = r.nextPacket(0); err != nil {
		return
	}

	r.started = true
	r.current = p
	r.lastSent = r.now()
	return
}

// HandleControl processes a received control Packet's sequence number. If send is true, p must be transmitted.
//
// Handling the same control Packet twice does not advance the stream twice. After the terminal Packet was
// acknowledged, the Responder is Finished and ignores further control Packets.
func (r *Responder) HandleControl(seq uint64) (p Packet, send bool, err error) {
	if !r.started {
		err = fmt.Errorf("responder was not started")
		return
	}
	if r.finished {
		return
	}

	cursor := r.current.SequenceNumber
	switch {
	case seq == cursor:
		if r.current.IsTerminal() {
			r.finished = true
			return
		}

		if p, err = r.nextPacket(cursor + 1); err != nil {
			return
		}
		r.current = p
		send = true

	case seq < cursor:
		if r.retransmitGuard > 0 && r.now().Sub(r.lastSent) < r.retransmitGuard {
			return
		}

		r.retransmissions++
		p = r.current
		send = true

	default:
		return
	}

	r.lastSent = r.now()
	return
}

// Cursor returns the sequence number of the outstanding Packet.
func (r *Responder) Cursor() uint64 {
	return r.current.SequenceNumber
}

// Draining checks if the terminal Packet is outstanding.
func (r *Responder) Draining() bool {
	return r.started && r.current.IsTerminal()
}

// Finished checks if the terminal Packet was acknowledged.
func (r *Responder) Finished() bool {
	return r.finished
}

// Bytes read from the source so far.
func (r *Responder) Bytes() uint64 {
	return r.bytes
}

// Retransmissions counts resent Packets.
func (r *Responder) Retransmissions() uint64 {
	return r.retransmissions
}
