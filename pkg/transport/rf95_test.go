// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dtn7/rft-go/pkg/rft"
)

// dummyAir connects multiple dummyModems. Each written packet is received by all other modems.
type dummyAir struct {
	mutex  sync.Mutex
	modems []*dummyModem
}

func (air *dummyAir) broadcast(from *dummyModem, data []byte) {
	air.mutex.Lock()
	defer air.mutex.Unlock()

	for _, m := range air.modems {
		if m == from {
			continue
		}

		select {
		case m.inChan <- append([]byte(nil), data...):
		default:
		}
	}
}

// dummyModem replaces a serial rf95modem for testing.
type dummyModem struct {
	air    *dummyAir
	inChan chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newDummyModem(air *dummyAir) *dummyModem {
	m := &dummyModem{
		air:    air,
		inChan: make(chan []byte, 64),
		closed: make(chan struct{}),
	}

	air.mutex.Lock()
	air.modems = append(air.modems, m)
	air.mutex.Unlock()

	return m
}

func (m *dummyModem) Read(p []byte) (int, error) {
	select {
	case data := <-m.inChan:
		return copy(p, data), nil
	case <-m.closed:
		return 0, io.EOF
	}
}

func (m *dummyModem) Write(p []byte) (int, error) {
	select {
	case <-m.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	m.air.broadcast(m, p)
	return len(p), nil
}

func (m *dummyModem) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func newDummyRf95Pair(mtu int) (a, b *Rf95Conn) {
	air := &dummyAir{}
	a = newRf95Conn("/dev/a", newDummyModem(air), mtu)
	b = newRf95Conn("/dev/b", newDummyModem(air), mtu)
	return
}

func TestRf95Exchange(t *testing.T) {
	a, b := newDummyRf95Pair(32)
	defer a.Close()
	defer b.Close()

	_ = b.SetTimeout(time.Second)

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	n, addr, err := b.ReceiveFrom(buf)
	if err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(buf[:n], []byte("hello")) {
		t.Fatalf("received %q", buf[:n])
	} else if addr != Rf95Addr("/dev/b") {
		t.Fatalf("received from %v", addr)
	}

	if err := b.SendTo([]byte("world"), addr); err != nil {
		t.Fatal(err)
	}
	_ = a.SetTimeout(time.Second)
	if n, err := a.Receive(buf); err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(buf[:n], []byte("world")) {
		t.Fatalf("received %q", buf[:n])
	}
}

func TestRf95Mtu(t *testing.T) {
	a, b := newDummyRf95Pair(32)
	defer a.Close()
	defer b.Close()

	if s := a.SegmentSize(8); s != 24 {
		t.Fatalf("expected a segment size of 24, got %d", s)
	}

	if err := a.Send(make([]byte, 32)); err != nil {
		t.Fatal(err)
	}
	if err := a.Send(make([]byte, 33)); err == nil {
		t.Fatalf("datagram exceeding the MTU was sent")
	}
}

func TestRf95Timeout(t *testing.T) {
	a, b := newDummyRf95Pair(32)
	defer a.Close()
	defer b.Close()

	_ = a.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	if _, err := a.Receive(make([]byte, 32)); err != errTimeout {
		t.Fatalf("expected timeout, got %v", err)
	} else if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("returned before the timeout")
	}
}

func TestRf95Closed(t *testing.T) {
	a, b := newDummyRf95Pair(32)
	defer b.Close()

	_ = a.SetTimeout(time.Second)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Receive(make([]byte, 32)); err != io.EOF {
		t.Fatalf("expected the modem's read error, got %v", err)
	}
}

type memFile struct{ data []byte }

func (mf memFile) Open(string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(mf.data)), nil
}

func TestRf95Transfer(t *testing.T) {
	data := make([]byte, 500)
	rand.New(rand.NewSource(23)).Read(data)

	responderConn, requesterConn := newDummyRf95Pair(64)
	defer requesterConn.Close()

	serverConf := rft.DefaultServerConfig()
	serverConf.SegmentSize = responderConn.SegmentSize(rft.SequenceNumberSize)

	server := rft.NewServer(responderConn, memFile{data}, serverConf)
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	conf := rft.DefaultConfig()
	conf.SegmentSize = requesterConn.SegmentSize(rft.SequenceNumberSize)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var buf bytes.Buffer
	res, err := rft.NewRequester(requesterConn, conf).Fetch(ctx, "file.bin", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Fatalf("received data differs")
	}
	if res.Packets != 10 {
		t.Fatalf("expected 10 packets, got %d", res.Packets)
	}
}
