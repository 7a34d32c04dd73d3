// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// outcome of a session's receive loop.
type outcome uint

const (
	_ outcome = iota

	// endOfStream indicates the reception of the terminal Packet.
	endOfStream

	// retryAttempt signals that the first Packet of this attempt could not be accepted and the whole request must be
	// sent again.
	retryAttempt

	// stalled indicates an expired receive timeout.
	stalled
)

func (o outcome) String() string {
	switch o {
	case endOfStream:
		return "end of stream"
	case retryAttempt:
		return "retry attempt"
	case stalled:
		return "stalled"
	default:
		return "unknown outcome"
	}
}

// session is the requester's state for one file. The expected sequence number belongs to the current attempt and is
// reset by each new attempt.
type session struct {
	filename    string
	endpoint    Endpoint
	segmentSize int
	buf         []byte

	expected uint64

	received        uint64
	bytes           uint64
	retransmissions uint64
}

func newSession(filename string, endpoint Endpoint, segmentSize int) *session {
	// One spare byte detects oversized datagrams, as transports truncate them silently.
	return &session{
		filename:    filename,
		endpoint:    endpoint,
		segmentSize: segmentSize,
		buf:         make([]byte, SequenceNumberSize+segmentSize+1),
	}
}

func (s *session) String() string {
	return fmt.Sprintf("session(%s, expected=%d)", s.filename, s.expected)
}

// reset the session's attempt state.
func (s *session) reset() {
	s.expected = 0
}

// request sends the file name to the peer.
func (s *session) request() error {
	return s.endpoint.Send([]byte(s.filename))
}

// requestRetransmission of the Packet following the last good one.
func (s *session) requestRetransmission() error {
	s.retransmissions++
	return s.endpoint.Send(NewControlPacket(s.expected - 1).Bytes())
}

// receive Packets for the current attempt and append accepted payloads to w.
//
// The loop returns on the terminal Packet, on a Packet which cannot be the first one of this attempt, or on an
// expired receive timeout. A returned error is either a transport error or an oversized datagram, wrapped into a
// TransferError with Op "receive" or "send", or a storage error with Op "write".
func (s *session) receive(w io.Writer, attempt int) (o outcome, err error) {
	for {
		n, rErr := s.endpoint.Receive(s.buf)
		if rErr != nil {
			if IsTimeout(rErr) {
				o = stalled
			} else {
				err = newTransferError(s.filename, attempt, "receive", rErr)
			}
			return
		}

		if n > SequenceNumberSize+s.segmentSize {
			err = newTransferError(s.filename, attempt, "receive",
				fmt.Errorf("%w: received %d bytes for a segment size of %d", ErrSegmentSize, n, s.segmentSize))
			return
		}

		p, pErr := ParsePacket(s.buf[:n])
		if pErr != nil {
			log.WithFields(log.Fields{
				"session": s,
				"error":   pErr,
			}).Debug("Dropping malformed datagram")
			continue
		}

		s.received++

		switch {
		case p.SequenceNumber == s.expected:
			if !p.IsTerminal() {
				if _, wErr := w.Write(p.Payload); wErr != nil {
					err = newTransferError(s.filename, attempt, "write", wErr)
					return
				}
				s.bytes += uint64(len(p.Payload))
			}

			if sErr := s.endpoint.Send(NewControlPacket(s.expected).Bytes()); sErr != nil {
				err = newTransferError(s.filename, attempt, "send", sErr)
				return
			}
			s.expected++

			if p.IsTerminal() {
				o = endOfStream
				return
			}

		case s.expected == 0:
			log.WithFields(log.Fields{
				"session": s,
				"packet":  p,
			}).Debug("First packet of attempt is out of order, request seems to be lost")

			o = retryAttempt
			return

		default:
			log.WithFields(log.Fields{
				"session": s,
				"packet":  p,
			}).Debug("Unexpected packet, requesting retransmission")

			if sErr := s.requestRetransmission(); sErr != nil {
				err = newTransferError(s.filename, attempt, "send", sErr)
				return
			}
		}
	}
}
