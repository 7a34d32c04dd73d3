// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// hubQueueSize is the amount of datagrams buffered per HubConn. Further datagrams are dropped.
const hubQueueSize = 1024

// HubAddr addresses a HubConn within its Hub.
type HubAddr string

func (HubAddr) Network() string {
	return "hub"
}

func (a HubAddr) String() string {
	return string(a)
}

// DropFunc decides if the nth datagram, counted from one for each Hub, should be dropped.
type DropFunc func(n uint64, from, to net.Addr, datagram []byte) bool

// Hub connects multiple HubConns in memory and can impair their link by dropping or duplicating datagrams.
type Hub struct {
	mutex sync.Mutex
	conns map[HubAddr]*HubConn

	counter        uint64
	dropEvery      uint64
	duplicateEvery uint64
	dropFunc       DropFunc
}

// NewHub creates a new Hub delivering all datagrams.
func NewHub() *Hub {
	return &Hub{conns: make(map[HubAddr]*HubConn)}
}

// NewHubDrop creates a new Hub which drops each nth datagram.
func NewHubDrop(n uint64) *Hub {
	h := NewHub()
	h.dropEvery = n
	return h
}

// SetDropFunc installs an additional DropFunc.
func (h *Hub) SetDropFunc(f DropFunc) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.dropFunc = f
}

// SetDuplicateEvery delivers each nth datagram twice. Zero disables duplication.
func (h *Hub) SetDuplicateEvery(n uint64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.duplicateEvery = n
}

// Counter returns the amount of datagrams sent through this Hub.
func (h *Hub) Counter() uint64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.counter
}

// Attach a new HubConn under the given name. Its Send method transmits to peer, which may be empty for a pure
// Listener.
func (h *Hub) Attach(name, peer string) (*HubConn, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	addr := HubAddr(name)
	if _, exists := h.conns[addr]; exists {
		return nil, fmt.Errorf("hub address %s is already in use", name)
	}

	c := &HubConn{
		hub:    h,
		addr:   addr,
		peer:   HubAddr(peer),
		inChan: make(chan hubDatagram, hubQueueSize),
		closed: make(chan struct{}),
	}
	h.conns[addr] = c
	return c, nil
}

func (h *Hub) detach(addr HubAddr) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	delete(h.conns, addr)
}

// transmit a datagram from one HubConn to another. Unknown receivers result in a silent drop, like UDP does.
func (h *Hub) transmit(from, to HubAddr, datagram []byte) {
	h.mutex.Lock()
	h.counter++
	n := h.counter

	drop := h.dropEvery != 0 && n%h.dropEvery == 0
	if !drop && h.dropFunc != nil {
		drop = h.dropFunc(n, from, to, datagram)
	}
	duplicate := h.duplicateEvery != 0 && n%h.duplicateEvery == 0

	receiver, ok := h.conns[to]
	h.mutex.Unlock()

	if drop || !ok {
		return
	}

	data := make([]byte, len(datagram))
	copy(data, datagram)

	receiver.deliver(hubDatagram{from: from, data: data})
	if duplicate {
		receiver.deliver(hubDatagram{from: from, data: data})
	}
}

type hubDatagram struct {
	from HubAddr
	data []byte
}

// HubConn is both a Conn and a Listener attached to a Hub.
type HubConn struct {
	hub    *Hub
	addr   HubAddr
	peer   HubAddr
	inChan chan hubDatagram

	timeoutMutex sync.Mutex
	timeout      time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// deliver a datagram to this HubConn or drop it if the queue is full.
func (c *HubConn) deliver(d hubDatagram) {
	select {
	case c.inChan <- d:
	default:
	}
}

func (c *HubConn) Send(datagram []byte) error {
	return c.SendTo(datagram, c.peer)
}

func (c *HubConn) SendTo(datagram []byte, addr net.Addr) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.hub.transmit(c.addr, HubAddr(addr.String()), datagram)
	return nil
}

func (c *HubConn) Receive(buf []byte) (n int, err error) {
	n, _, err = c.ReceiveFrom(buf)
	return
}

func (c *HubConn) ReceiveFrom(buf []byte) (n int, addr net.Addr, err error) {
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
	case d := <-c.inChan:
		n = copy(buf, d.data)
		addr = d.from

	case <-timeoutChan:
		err = errTimeout

	case <-c.closed:
		err = ErrClosed
	}
	return
}

// SetTimeout for following receive calls. Zero blocks until a datagram arrives.
func (c *HubConn) SetTimeout(timeout time.Duration) error {
	c.timeoutMutex.Lock()
	c.timeout = timeout
	c.timeoutMutex.Unlock()
	return nil
}

// LocalAddr of this HubConn within its Hub.
func (c *HubConn) LocalAddr() net.Addr {
	return c.addr
}

func (c *HubConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.hub.detach(c.addr)
	})
	return nil
}

func (c *HubConn) String() string {
	return fmt.Sprintf("hub://%s", c.addr)
}
