// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rf95modem-go/rf95"
)

// Rf95Addr is the pseudo address of all peers reachable over a broadcasting rf95modem.
type Rf95Addr string

func (Rf95Addr) Network() string {
	return "rf95"
}

func (a Rf95Addr) String() string {
	return string(a)
}

// Rf95Conn broadcasts datagrams over LoRa by using a rf95modem. It is both a Conn and a Listener; as the link is a
// broadcast medium, all peers share one address.
type Rf95Conn struct {
	device string
	modem  io.ReadWriteCloser
	mtu    int

	inChan chan []byte

	errMutex sync.Mutex
	err      error
	errSyn   chan struct{}

	timeoutMutex sync.Mutex
	timeout      time.Duration
}

// OpenRf95 creates a new Rf95Conn using a serial connection to the given device, e.g., /dev/ttyUSB0. A positive
// frequency, in MHz, is configured on the modem.
func OpenRf95(device string, frequency float64) (c *Rf95Conn, err error) {
	m, mErr := rf95.OpenSerial(device)
	if mErr != nil {
		err = mErr
		return
	}

	if frequency > 0 {
		log.WithFields(log.Fields{
			"device":    device,
			"frequency": frequency,
		}).Debug("Shifting rf95modem frequency")

		if err = m.Frequency(frequency); err != nil {
			_ = m.Close()
			return
		}
	}

	mtu, mtuErr := m.Mtu()
	if mtuErr != nil {
		_ = m.Close()
		err = mtuErr
		return
	}

	c = newRf95Conn(device, m, mtu)
	return
}

// newRf95Conn on an opened modem, whose Read returns one received packet of up to mtu bytes.
func newRf95Conn(device string, modem io.ReadWriteCloser, mtu int) *Rf95Conn {
	c := &Rf95Conn{
		device: device,
		modem:  modem,
		mtu:    mtu,
		inChan: make(chan []byte, 64),
		errSyn: make(chan struct{}),
	}
	go c.handle()

	return c
}

func (c *Rf95Conn) handle() {
	for {
		buf := make([]byte, c.mtu)
		n, err := c.modem.Read(buf)
		if err != nil {
			c.errMutex.Lock()
			c.err = err
			c.errMutex.Unlock()
			close(c.errSyn)
			return
		}

		select {
		case c.inChan <- buf[:n]:
		default:
		}
	}
}

// SegmentSize is the largest payload fitting the modem's MTU next to a sequence number of sequenceNumberSize bytes.
func (c *Rf95Conn) SegmentSize(sequenceNumberSize int) int {
	return c.mtu - sequenceNumberSize
}

func (c *Rf95Conn) Send(datagram []byte) error {
	if len(datagram) > c.mtu {
		return fmt.Errorf("datagram of %d bytes exceeds the MTU of %d bytes", len(datagram), c.mtu)
	}

	_, err := c.modem.Write(datagram)
	return err
}

func (c *Rf95Conn) SendTo(datagram []byte, _ net.Addr) error {
	return c.Send(datagram)
}

func (c *Rf95Conn) Receive(buf []byte) (n int, err error) {
	n, _, err = c.ReceiveFrom(buf)
	return
}

func (c *Rf95Conn) ReceiveFrom(buf []byte) (n int, addr net.Addr, err error) {
	c.timeoutMutex.Lock()
	timeout := c.timeout
	c.timeoutMutex.Unlock()

	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}

	select {
	case msg := <-c.inChan:
		n = copy(buf, msg)
		addr = Rf95Addr(c.device)

	case <-timeoutChan:
		err = errTimeout

	case <-c.errSyn:
		c.errMutex.Lock()
		err = c.err
		c.errMutex.Unlock()
	}
	return
}

// SetTimeout for following receive calls. Zero blocks until a datagram arrives.
func (c *Rf95Conn) SetTimeout(timeout time.Duration) error {
	c.timeoutMutex.Lock()
	c.timeout = timeout
	c.timeoutMutex.Unlock()
	return nil
}

func (c *Rf95Conn) Close() error {
	return c.modem.Close()
}

func (c *Rf95Conn) String() string {
	return fmt.Sprintf("rf95modem%s", c.device)
}
