// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"testing"
)

func TestLossyBounds(t *testing.T) {
	h := NewHub()
	conn, _ := h.Attach("client", "server")

	for _, percent := range []int{-1, 101} {
		if _, err := NewLossy(conn, percent, 0); err == nil {
			t.Fatalf("loss of %d%% was accepted", percent)
		}
	}
}

func TestLossyRate(t *testing.T) {
	tests := []struct {
		percent  int
		min, max uint64
	}{
		{0, 0, 0},
		{30, 200, 400},
		{100, 1000, 1000},
	}

	for _, test := range tests {
		h := NewHub()
		conn, _ := h.Attach("client", "server")

		lossy, err := NewLossy(conn, test.percent, 23)
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < 1000; i++ {
			if err := lossy.Send([]byte{0x00}); err != nil {
				t.Fatal(err)
			}
		}

		if d := lossy.Dropped(); d < test.min || d > test.max {
			t.Fatalf("%d%% loss dropped %d datagrams, expected %d..%d", test.percent, d, test.min, test.max)
		}
		if passed := h.Counter(); passed+lossy.Dropped() != 1000 {
			t.Fatalf("%d datagrams passed and %d were dropped, expected 1000 in total", passed, lossy.Dropped())
		}
	}
}
