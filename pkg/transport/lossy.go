// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Lossy wraps a Conn and silently drops outbound datagrams with a fixed probability.
type Lossy struct {
	Conn

	percent int

	mutex   sync.Mutex
	rand    *rand.Rand
	dropped uint64
}

// NewLossy drops percent of all datagrams sent through conn, using a pseudo-random source seeded by seed.
func NewLossy(conn Conn, percent int, seed int64) (*Lossy, error) {
	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("loss of %d%% is not within 0..100", percent)
	}

	return &Lossy{
		Conn:    conn,
		percent: percent,
		rand:    rand.New(rand.NewSource(seed)),
	}, nil
}

// NewLossyNow is NewLossy seeded by the current time.
func NewLossyNow(conn Conn, percent int) (*Lossy, error) {
	return NewLossy(conn, percent, time.Now().UnixNano())
}

func (l *Lossy) Send(datagram []byte) error {
	l.mutex.Lock()
	drop := l.rand.Intn(100) < l.percent
	if drop {
		l.dropped++
	}
	l.mutex.Unlock()

	if drop {
		log.WithFields(log.Fields{
			"conn": l.Conn,
			"size": len(datagram),
		}).Debug("Lossy link dropped datagram")
		return nil
	}

	return l.Conn.Send(datagram)
}

// Dropped returns the amount of dropped datagrams.
func (l *Lossy) Dropped() uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.dropped
}

func (l *Lossy) String() string {
	return fmt.Sprintf("lossy(%v, %d%%)", l.Conn, l.percent)
}
