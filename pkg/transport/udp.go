// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// UDPConn is a Conn over an unconnected UDP socket, sending to a fixed peer. ICMP errors, e.g., for a responder
// which is not running yet, are not reported and result in receive timeouts.
type UDPConn struct {
	conn  *net.UDPConn
	raddr *net.UDPAddr

	timeoutMutex sync.Mutex
	timeout      time.Duration
}

// DialUDP creates a UDPConn for the given "host:port" address. Resolution errors are returned as a ResolveError.
func DialUDP(address string) (*UDPConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, newResolveError(address, err)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}

	return &UDPConn{conn: conn, raddr: raddr}, nil
}

func (c *UDPConn) Send(datagram []byte) (err error) {
	_, err = c.conn.WriteToUDP(datagram, c.raddr)
	return
}

func (c *UDPConn) Receive(buf []byte) (n int, err error) {
	if err = c.setDeadline(); err != nil {
		return
	}
	n, _, err = c.conn.ReadFromUDP(buf)
	return
}

func (c *UDPConn) setDeadline() error {
	c.timeoutMutex.Lock()
	timeout := c.timeout
	c.timeoutMutex.Unlock()

	if timeout <= 0 {
		return c.conn.SetReadDeadline(time.Time{})
	}
	return c.conn.SetReadDeadline(time.Now().Add(timeout))
}

// SetTimeout for following Receive calls. Zero blocks until a datagram arrives.
func (c *UDPConn) SetTimeout(timeout time.Duration) error {
	c.timeoutMutex.Lock()
	c.timeout = timeout
	c.timeoutMutex.Unlock()
	return nil
}

// LocalAddr of the underlying socket.
func (c *UDPConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *UDPConn) Close() error {
	return c.conn.Close()
}

func (c *UDPConn) String() string {
	return fmt.Sprintf("udp://%v", c.raddr)
}

// UDPListener is a Listener on a bound UDP socket.
type UDPListener struct {
	conn *net.UDPConn

	timeoutMutex sync.Mutex
	timeout      time.Duration
}

// ListenUDP binds a UDPListener to the given address, e.g., ":4951". On Linux, the socket is configured with
// SO_REUSEADDR and an enlarged receive buffer.
func ListenUDP(address string) (*UDPListener, error) {
	if _, err := net.ResolveUDPAddr("udp", address); err != nil {
		return nil, newResolveError(address, err)
	}

	lc := net.ListenConfig{Control: listenControl}
	pc, err := lc.ListenPacket(context.Background(), "udp", address)
	if err != nil {
		return nil, err
	}

	return &UDPListener{conn: pc.(*net.UDPConn)}, nil
}

func (l *UDPListener) ReceiveFrom(buf []byte) (n int, addr net.Addr, err error) {
	l.timeoutMutex.Lock()
	timeout := l.timeout
	l.timeoutMutex.Unlock()

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err = l.conn.SetReadDeadline(deadline); err != nil {
		return
	}

	return l.conn.ReadFrom(buf)
}

func (l *UDPListener) SendTo(datagram []byte, addr net.Addr) (err error) {
	_, err = l.conn.WriteTo(datagram, addr)
	return
}

// SetTimeout for following ReceiveFrom calls. Zero blocks until a datagram arrives.
func (l *UDPListener) SetTimeout(timeout time.Duration) error {
	l.timeoutMutex.Lock()
	l.timeout = timeout
	l.timeoutMutex.Unlock()
	return nil
}

// LocalAddr of the bound socket, e.g., to find a random port.
func (l *UDPListener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *UDPListener) Close() error {
	return l.conn.Close()
}

func (l *UDPListener) String() string {
	return fmt.Sprintf("udp://%v", l.conn.LocalAddr())
}
