// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout is the default receive timeout of a Requester.
const DefaultTimeout = 100 * time.Millisecond

// RetryPolicy limits and paces the attempts of a transfer.
type RetryPolicy struct {
	// MaxAttempts limits the amount of attempts. Zero allows an unlimited amount.
	MaxAttempts int

	// Backoff is the delay before the second attempt. It doubles for each following attempt. Zero retries at once.
	Backoff time.Duration

	// MaxBackoff caps the delay between two attempts, if set. Otherwise the delay saturates at the largest
	// time.Duration.
	MaxBackoff time.Duration
}

// delay before the given attempt, starting at one.
func (rp RetryPolicy) delay(attempt int) (d time.Duration) {
	if attempt <= 1 || rp.Backoff <= 0 {
		return 0
	}

	d = rp.Backoff
	for i := 2; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}

		d *= 2
		if rp.MaxBackoff > 0 && d >= rp.MaxBackoff {
			break
		}
	}

	if rp.MaxBackoff > 0 && d > rp.MaxBackoff {
		d = rp.MaxBackoff
	}
	return
}

// exhausted checks if the given attempt must not be started anymore.
func (rp RetryPolicy) exhausted(attempt int) bool {
	return rp.MaxAttempts > 0 && attempt > rp.MaxAttempts
}

// Config of a Requester.
type Config struct {
	// Timeout for each receive. A stream is considered stalled after one Timeout of silence.
	Timeout time.Duration

	// SegmentSize is the largest expected payload. It must match the Responder's segment size.
	SegmentSize int

	// MaxStalls limits the consecutive stalls within a started stream. Zero allows an unlimited amount.
	MaxStalls int

	Retry RetryPolicy
}

// DefaultConfig with an unlimited amount of immediate retries.
func DefaultConfig() Config {
	return Config{
		Timeout:     DefaultTimeout,
		SegmentSize: DefaultSegmentSize,
	}
}

func (c Config) check() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, not %v", c.Timeout)
	}
	if c.SegmentSize <= 0 {
		return fmt.Errorf("segment size must be positive, not %d", c.SegmentSize)
	}
	if c.MaxStalls < 0 || c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("negative limits are not allowed")
	}
	return nil
}

// Result summarizes a completed transfer.
type Result struct {
	Filename string

	// Bytes and Packets accepted, the latter including the terminal Packet.
	Bytes   uint64
	Packets uint64

	Attempts        int
	Retransmissions uint64

	// Elapsed covers the successful attempt, starting with its request. Total includes all earlier attempts.
	Elapsed time.Duration
	Total   time.Duration
}

func (r Result) String() string {
	return fmt.Sprintf("%s received, %v for transmission", r.Filename, r.Elapsed)
}

// Requester fetches files over an Endpoint. A Requester must not be used for multiple concurrent transfers.
type Requester struct {
	endpoint Endpoint
	conf     Config
}

// NewRequester for an Endpoint, bound to the Responder's address.
func NewRequester(endpoint Endpoint, conf Config) *Requester {
	return &Requester{
		endpoint: endpoint,
		conf:     conf,
	}
}

// Fetch the named file and write its content in order to w.
//
// On success, w received exactly the file's content. On failure, w might have received a prefix of it; attempts are
// only restarted before the first byte was written. A returned TransferError wraps the cause, which might be
// ErrMaxAttempts, ErrStalled, ErrSegmentSize, the context's error, a transport error or w's error.
func (r *Requester) Fetch(ctx context.Context, filename string, w io.Writer) (res Result, err error) {
	res.Filename = filename

	if cErr := r.conf.check(); cErr != nil {
		err = newTransferError(filename, 0, "configure", cErr)
		return
	}
	if len(filename) == 0 || len(filename) > r.conf.SegmentSize {
		err = newTransferError(filename, 0, "request",
			fmt.Errorf("file name length %d is out of bounds (1..%d)", len(filename), r.conf.SegmentSize))
		return
	}
	if tErr := r.endpoint.SetTimeout(r.conf.Timeout); tErr != nil {
		err = newTransferError(filename, 0, "configure", tErr)
		return
	}

	s := newSession(filename, r.endpoint, r.conf.SegmentSize)
	start := time.Now()

	defer func() {
		res.Bytes = s.bytes
		res.Retransmissions = s.retransmissions
		res.Total = time.Since(start)
	}()

	for attempt := 1; ; attempt++ {
		if r.conf.Retry.exhausted(attempt) {
			err = newTransferError(filename, attempt-1, "request", ErrMaxAttempts)
			return
		}

		if d := r.conf.Retry.delay(attempt); d > 0 {
			select {
			case <-ctx.Done():
				err = newTransferError(filename, attempt, "request", ctx.Err())
				return

			case <-time.After(d):
			}
		}

		res.Attempts = attempt
		attemptStart := time.Now()

		s.reset()
		if sErr := s.request(); sErr != nil {
			err = newTransferError(filename, attempt, "send", sErr)
			return
		}

		o, dErr := r.drive(ctx, s, w, attempt)
		if dErr != nil {
			err = dErr
			return
		}

		if o == endOfStream {
			res.Packets = s.expected
			res.Elapsed = time.Since(attemptStart)

			log.WithFields(log.Fields{
				"file":     filename,
				"bytes":    s.bytes,
				"attempts": attempt,
				"elapsed":  res.Elapsed,
			}).Info("Received file")
			return
		}

		log.WithFields(log.Fields{
			"file":    filename,
			"attempt": attempt,
			"outcome": o,
		}).Debug("Restarting request")
	}
}

// drive a started attempt until its end of stream or until it must be restarted.
func (r *Requester) drive(ctx context.Context, s *session, w io.Writer, attempt int) (o outcome, err error) {
	stalls := 0

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = newTransferError(s.filename, attempt, "receive", ctxErr)
			return
		}

		received := s.received
		if o, err = s.receive(w, attempt); err != nil || o != stalled {
			return
		}

		if s.expected == 0 {
			o = retryAttempt
			return
		}

		if s.received != received {
			stalls = 0
		}
		stalls++

		if r.conf.MaxStalls > 0 && stalls > r.conf.MaxStalls {
			err = newTransferError(s.filename, attempt, "receive", ErrStalled)
			return
		}

		log.WithFields(log.Fields{
			"session": s,
			"stalls":  stalls,
		}).Debug("Stream stalled, requesting retransmission")

		if sErr := s.requestRetransmission(); sErr != nil {
			err = newTransferError(s.filename, attempt, "send", sErr)
			return
		}
	}
}
