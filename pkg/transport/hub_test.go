// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

func attachPair(t *testing.T, h *Hub) (client, server *HubConn) {
	var err error
	if server, err = h.Attach("server", ""); err != nil {
		t.Fatal(err)
	}
	if client, err = h.Attach("client", "server"); err != nil {
		t.Fatal(err)
	}
	return
}

func TestHubDelivery(t *testing.T) {
	h := NewHub()
	client, server := attachPair(t, h)
	defer client.Close()
	defer server.Close()

	if err := client.Send([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	n, addr, err := server.ReceiveFrom(buf)
	if err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(buf[:n], []byte("hello")) {
		t.Fatalf("received %q", buf[:n])
	} else if addr.String() != "client" {
		t.Fatalf("received from %v", addr)
	}

	if err := server.SendTo([]byte("world"), addr); err != nil {
		t.Fatal(err)
	}
	if n, err := client.Receive(buf); err != nil {
		t.Fatal(err)
	} else if !bytes.Equal(buf[:n], []byte("world")) {
		t.Fatalf("received %q", buf[:n])
	}
}

func TestHubAttachTwice(t *testing.T) {
	h := NewHub()
	if _, err := h.Attach("a", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Attach("a", ""); err == nil {
		t.Fatal("attaching the same address twice did not error")
	}
}

func TestHubTimeout(t *testing.T) {
	h := NewHub()
	client, server := attachPair(t, h)
	defer client.Close()
	defer server.Close()

	if err := server.SetTimeout(20 * time.Millisecond); err != nil {
		t.Fatal(err)
	}

	_, _, err := server.ReceiveFrom(make([]byte, 8))
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	client, server := attachPair(t, h)
	defer client.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = server.Close()
	}()

	if _, _, err := server.ReceiveFrom(make([]byte, 8)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := server.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestHubImpairments(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*Hub)
		sent      int
		delivered int
	}{
		{"none", func(*Hub) {}, 10, 10},
		{"drop every 2nd", func(h *Hub) { h.dropEvery = 2 }, 10, 5},
		{"drop every 3rd", func(h *Hub) { h.dropEvery = 3 }, 9, 6},
		{"duplicate every 5th", func(h *Hub) { h.SetDuplicateEvery(5) }, 10, 12},
		{"drop func", func(h *Hub) {
			h.SetDropFunc(func(n uint64, _, _ net.Addr, _ []byte) bool { return n <= 4 })
		}, 10, 6},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := NewHub()
			test.setup(h)

			client, server := attachPair(t, h)
			defer client.Close()
			defer server.Close()

			for i := 0; i < test.sent; i++ {
				if err := client.Send([]byte{byte(i)}); err != nil {
					t.Fatal(err)
				}
			}

			if err := server.SetTimeout(20 * time.Millisecond); err != nil {
				t.Fatal(err)
			}

			delivered := 0
			for {
				if _, err := server.Receive(make([]byte, 8)); err != nil {
					break
				}
				delivered++
			}

			if delivered != test.delivered {
				t.Fatalf("expected %d delivered datagrams, got %d", test.delivered, delivered)
			}
			if c := h.Counter(); c != uint64(test.sent) {
				t.Fatalf("hub counted %d datagrams, sent %d", c, test.sent)
			}
		})
	}
}

func TestNewHubDrop(t *testing.T) {
	h := NewHubDrop(1)
	client, server := attachPair(t, h)
	defer client.Close()
	defer server.Close()

	_ = client.Send([]byte("lost"))
	_ = server.SetTimeout(20 * time.Millisecond)
	if _, err := server.Receive(make([]byte, 8)); err == nil {
		t.Fatal("datagram was not dropped")
	}
}
