// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func testRandomData(size int) []byte {
	data := make([]byte, size)

	rand.Seed(0)
	rand.Read(data)

	return data
}

// drainResponder acknowledges each Packet until the Responder has finished.
func drainResponder(t *testing.T, r *Responder) (packets []Packet) {
	p, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}
	packets = append(packets, p)

	for !r.Finished() {
		next, send, err := r.HandleControl(p.SequenceNumber)
		if err != nil {
			t.Fatal(err)
		}
		if send {
			p = next
			packets = append(packets, p)
		} else if !r.Finished() {
			t.Fatalf("ack of %v was not answered", p)
		}
	}
	return
}

func TestResponderSegmentation(t *testing.T) {
	const segmentSize = 1024

	tests := []struct {
		size    int
		packets int
	}{
		{0, 1},
		{1, 2},
		{segmentSize - 1, 2},
		{segmentSize, 2},
		{segmentSize + 1, 3},
		{20000, 21},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("%d", test.size), func(t *testing.T) {
			data := testRandomData(test.size)
			r := NewResponder(bytes.NewReader(data), segmentSize)

			packets := drainResponder(t, r)
			if len(packets) != test.packets {
				t.Fatalf("expected %d packets, got %d", test.packets, len(packets))
			}

			var buf bytes.Buffer
			for i, p := range packets {
				if p.SequenceNumber != uint64(i) {
					t.Fatalf("packet %d has sequence number %d", i, p.SequenceNumber)
				}
				if len(p.Payload) > segmentSize {
					t.Fatalf("packet %d exceeds segment size", i)
				}
				if p.IsTerminal() != (i == len(packets)-1) {
					t.Fatalf("packet %d: unexpected terminal state", i)
				}
				buf.Write(p.Payload)
			}

			if !bytes.Equal(buf.Bytes(), data) {
				t.Fatalf("reassembled data differs")
			}
			if r.Bytes() != uint64(test.size) {
				t.Fatalf("responder counted %d bytes", r.Bytes())
			}
		})
	}
}

func TestResponderAckIdempotence(t *testing.T) {
	r := NewResponder(bytes.NewReader(testRandomData(4096)), 1024)

	p0, err := r.Start()
	if err != nil {
		t.Fatal(err)
	}

	p1, send, err := r.HandleControl(p0.SequenceNumber)
	if err != nil || !send || p1.SequenceNumber != 1 {
		t.Fatalf("ack of 0 did not advance: %v, %t, %v", p1, send, err)
	}

	for i := 0; i < 10; i++ {
		p, send, err := r.HandleControl(0)
		if err != nil {
			t.Fatal(err)
		}
		if !send || p.SequenceNumber != 1 {
			t.Fatalf("replayed ack of 0 resulted in %v, %t", p, send)
		}
		if r.Cursor() != 1 {
			t.Fatalf("cursor moved to %d", r.Cursor())
		}
	}

	if r.Retransmissions() != 10 {
		t.Fatalf("expected 10 retransmissions, got %d", r.Retransmissions())
	}

	p2, send, err := r.HandleControl(1)
	if err != nil || !send || p2.SequenceNumber != 2 {
		t.Fatalf("ack of 1 did not advance: %v, %t, %v", p2, send, err)
	}
}

func TestResponderIgnoresFutureAcks(t *testing.T) {
	r := NewResponder(bytes.NewReader(testRandomData(4096)), 1024)
	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}

	if _, send, err := r.HandleControl(5); err != nil || send {
		t.Fatalf("ack from the future was answered: %t, %v", send, err)
	}
	if r.Cursor() != 0 {
		t.Fatalf("cursor moved to %d", r.Cursor())
	}
}

func TestResponderFinished(t *testing.T) {
	r := NewResponder(bytes.NewReader(nil), 1024)

	if _, _, err := r.HandleControl(0); err == nil {
		t.Fatal("handling a control packet before Start did not error")
	}

	p, err := r.Start()
	if err != nil {
		t.Fatal(err)
	} else if !p.IsTerminal() || p.SequenceNumber != 0 {
		t.Fatalf("empty source resulted in %v", p)
	}

	if _, err := r.Start(); err == nil {
		t.Fatal("second Start did not error")
	}

	if _, send, err := r.HandleControl(0); err != nil || send {
		t.Fatalf("ack of terminal packet: %t, %v", send, err)
	}
	if !r.Finished() {
		t.Fatal("responder did not finish")
	}

	if _, send, _ := r.HandleControl(0); send {
		t.Fatal("finished responder answered")
	}
}

func TestResponderRetransmitGuard(t *testing.T) {
	now := time.Unix(0, 0)

	r := NewResponder(bytes.NewReader(testRandomData(4096)), 1024)
	r.now = func() time.Time { return now }
	r.SetRetransmitGuard(50 * time.Millisecond)

	if _, err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if _, send, _ := r.HandleControl(0); !send {
		t.Fatal("ack was not answered")
	}

	// A duplicated ack arrives right after the ack itself.
	if _, send, _ := r.HandleControl(0); send {
		t.Fatal("retransmission within guard interval")
	}

	now = now.Add(60 * time.Millisecond)
	if p, send, _ := r.HandleControl(0); !send || p.SequenceNumber != 1 {
		t.Fatal("retransmission after guard interval was dropped")
	}

	// Acks are never guarded.
	if p, send, _ := r.HandleControl(1); !send || p.SequenceNumber != 2 {
		t.Fatal("ack within guard interval was dropped")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errDiskFull
}

func TestResponderReadError(t *testing.T) {
	r := NewResponder(failingReader{}, 1024)
	if _, err := r.Start(); !errors.Is(err, errDiskFull) {
		t.Fatalf("expected read error, got %v", err)
	}
}
