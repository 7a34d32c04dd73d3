// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	tests := []struct {
		policy  RetryPolicy
		attempt int
		delay   time.Duration
	}{
		{RetryPolicy{}, 1, 0},
		{RetryPolicy{}, 5, 0},
		{RetryPolicy{Backoff: 100 * time.Millisecond}, 1, 0},
		{RetryPolicy{Backoff: 100 * time.Millisecond}, 2, 100 * time.Millisecond},
		{RetryPolicy{Backoff: 100 * time.Millisecond}, 3, 200 * time.Millisecond},
		{RetryPolicy{Backoff: 100 * time.Millisecond}, 5, 800 * time.Millisecond},
		{RetryPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: time.Second}, 5, 800 * time.Millisecond},
		{RetryPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: time.Second}, 6, time.Second},
		{RetryPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: time.Second}, 200, time.Second},
		{RetryPolicy{Backoff: time.Second}, 35, time.Second << 33},
		{RetryPolicy{Backoff: time.Second}, 36, math.MaxInt64},
		{RetryPolicy{Backoff: time.Second}, 70, math.MaxInt64},
		{RetryPolicy{Backoff: time.Nanosecond}, math.MaxInt32, math.MaxInt64},
		{RetryPolicy{Backoff: time.Second, MaxBackoff: time.Hour}, math.MaxInt32, time.Hour},
	}

	for _, test := range tests {
		if d := test.policy.delay(test.attempt); d != test.delay {
			t.Fatalf("%+v, attempt %d: expected %v, got %v", test.policy, test.attempt, test.delay, d)
		}
	}
}

func TestRequesterFetch(t *testing.T) {
	seg := segments(2)
	se := newScriptedEndpoint(NewDataPacket(0, seg[0]), NewDataPacket(1, seg[1]), NewDataPacket(2, nil))

	var buf bytes.Buffer
	res, err := NewRequester(se, DefaultConfig()).Fetch(context.Background(), "file", &buf)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(buf.Bytes(), bytes.Join(seg, nil)) {
		t.Fatalf("written data differs")
	}
	if res.Attempts != 1 || res.Packets != 3 || res.Bytes != uint64(buf.Len()) || res.Retransmissions != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !bytes.Equal(se.sent[0], []byte("file")) {
		t.Fatalf("first datagram was %q, not the file name", se.sent[0])
	}
	if c := se.controls(); !reflect.DeepEqual(c, []int64{-1, 0, 1, 2}) {
		t.Fatalf("unexpected datagrams %v", c)
	}
}

func TestRequesterStallRecovery(t *testing.T) {
	seg := segments(2)

	// Packet 1 is lost, the requester's timeout triggers a retransmission request for it.
	se := newScriptedEndpoint(NewDataPacket(0, seg[0]))
	se.pushTimeout()
	se.push(NewDataPacket(1, seg[1]))
	se.push(NewDataPacket(2, nil))

	var buf bytes.Buffer
	res, err := NewRequester(se, DefaultConfig()).Fetch(context.Background(), "file", &buf)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(buf.Bytes(), bytes.Join(seg, nil)) {
		t.Fatalf("written data differs")
	}
	if res.Attempts != 1 || res.Retransmissions != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if c := se.controls(); !reflect.DeepEqual(c, []int64{-1, 0, 0, 1, 2}) {
		t.Fatalf("unexpected datagrams %v", c)
	}
}

func TestRequesterRetryFirstPacket(t *testing.T) {
	seg := segments(2)
	requests := 0

	// The first attempt's answer is lost entirely; the second attempt succeeds.
	se := newScriptedEndpoint()
	se.react = func(sent []byte) [][]byte {
		if IsControlDatagram(sent) {
			return nil
		}

		requests++
		if requests == 1 {
			return [][]byte{nil}
		}
		return [][]byte{
			NewDataPacket(0, seg[0]).Bytes(),
			NewDataPacket(1, seg[1]).Bytes(),
			NewDataPacket(2, nil).Bytes(),
		}
	}

	var buf bytes.Buffer
	res, err := NewRequester(se, DefaultConfig()).Fetch(context.Background(), "file", &buf)
	if err != nil {
		t.Fatal(err)
	}

	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
	if !bytes.Equal(buf.Bytes(), bytes.Join(seg, nil)) {
		t.Fatalf("written data differs")
	}
}

func TestRequesterMaxAttempts(t *testing.T) {
	se := newScriptedEndpoint()

	conf := DefaultConfig()
	conf.Retry.MaxAttempts = 3

	var buf bytes.Buffer
	res, err := NewRequester(se, conf).Fetch(context.Background(), "file", &buf)
	if !errors.Is(err, ErrMaxAttempts) {
		t.Fatalf("expected ErrMaxAttempts, got %v", err)
	}
	if res.Attempts != 3 || len(se.sent) != 3 {
		t.Fatalf("expected 3 attempts, got %d with %d requests", res.Attempts, len(se.sent))
	}
	if buf.Len() != 0 {
		t.Fatalf("data was written")
	}
}

func TestRequesterMaxStalls(t *testing.T) {
	se := newScriptedEndpoint(NewDataPacket(0, []byte("data")))

	conf := DefaultConfig()
	conf.MaxStalls = 2

	_, err := NewRequester(se, conf).Fetch(context.Background(), "file", &bytes.Buffer{})
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("expected ErrStalled, got %v", err)
	}

	var te *TransferError
	if !errors.As(err, &te) || te.Attempt != 1 {
		t.Fatalf("expected TransferError of attempt 1, got %v", err)
	}

	if c := se.controls(); !reflect.DeepEqual(c, []int64{-1, 0, 0, 0}) {
		t.Fatalf("unexpected datagrams %v", c)
	}
}

func TestRequesterContext(t *testing.T) {
	se := newScriptedEndpoint()
	se.delay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewRequester(se, DefaultConfig()).Fetch(ctx, "file", &bytes.Buffer{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRequesterContextBackoff(t *testing.T) {
	se := newScriptedEndpoint()

	conf := DefaultConfig()
	conf.Retry.Backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewRequester(se, conf).Fetch(ctx, "file", &bytes.Buffer{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("backoff was not interrupted")
	}
}

func TestRequesterInvalidRequest(t *testing.T) {
	conf := DefaultConfig()
	conf.SegmentSize = 4

	tests := []struct {
		name string
		conf Config
	}{
		{"", DefaultConfig()},
		{"too long", conf},
		{"file", Config{}},
	}

	for _, test := range tests {
		se := newScriptedEndpoint()
		if _, err := NewRequester(se, test.conf).Fetch(context.Background(), test.name, &bytes.Buffer{}); err == nil {
			t.Fatalf("request for %q with %+v did not error", test.name, test.conf)
		}
		if len(se.sent) != 0 {
			t.Fatalf("invalid request was sent")
		}
	}
}
