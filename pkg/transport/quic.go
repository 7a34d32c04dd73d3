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

	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rft-go/pkg/transport/internal"
)

// QUICSegmentSize is the largest payload fitting into a single QUIC datagram, leaving room for the sequence number
// and QUIC's own framing.
const QUICSegmentSize = 1024

// quicQueueSize is the amount of received datagrams buffered before dropping further ones.
const quicQueueSize = 256

// QUICConn is a Conn exchanging unreliable QUIC datagrams, RFC 9221, with one peer.
type QUICConn struct {
	conn   quic.Connection
	inChan chan []byte

	errMutex sync.Mutex
	err      error
	errSyn   chan struct{}

	timeoutMutex sync.Mutex
	timeout      time.Duration
}

// DialQUIC establishes a QUIC connection to the given "host:port" address. The listener's certificate is not
// verified.
func DialQUIC(address string) (*QUICConn, error) {
	if _, err := net.ResolveUDPAddr("udp", address); err != nil {
		return nil, newResolveError(address, err)
	}

	conn, err := quic.DialAddr(context.Background(), address, internal.DialerTLSConfig(), internal.QUICConfig())
	if err != nil {
		return nil, err
	}

	c := &QUICConn{
		conn:   conn,
		inChan: make(chan []byte, quicQueueSize),
		errSyn: make(chan struct{}),
	}
	go c.handle()

	return c, nil
}

func (c *QUICConn) handle() {
	for {
		msg, err := c.conn.ReceiveMessage(context.Background())
		if err != nil {
			c.errMutex.Lock()
			c.err = err
			c.errMutex.Unlock()
			close(c.errSyn)

			log.WithFields(log.Fields{
				"conn":  c,
				"error": err,
			}).Debug("QUIC connection stopped receiving")
			return
		}

		select {
		case c.inChan <- msg:
		default:
		}
	}
}

func (c *QUICConn) Send(datagram []byte) error {
	return c.conn.SendMessage(datagram)
}

func (c *QUICConn) Receive(buf []byte) (n int, err error) {
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

	case <-timeoutChan:
		err = errTimeout

	case <-c.errSyn:
		c.errMutex.Lock()
		err = c.err
		c.errMutex.Unlock()
	}
	return
}

// SetTimeout for following Receive calls. Zero blocks until a datagram arrives.
func (c *QUICConn) SetTimeout(timeout time.Duration) error {
	c.timeoutMutex.Lock()
	c.timeout = timeout
	c.timeoutMutex.Unlock()
	return nil
}

func (c *QUICConn) Close() error {
	return c.conn.CloseWithError(internal.ApplicationShutdown, "closed")
}

func (c *QUICConn) String() string {
	return fmt.Sprintf("quic://%v", c.conn.RemoteAddr())
}

type quicDatagram struct {
	from net.Addr
	data []byte
}

// QUICListener is a Listener accepting QUIC connections and exchanging unreliable datagrams over them.
type QUICListener struct {
	listener *quic.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	connsMutex sync.Mutex
	conns      map[string]quic.Connection

	inChan chan quicDatagram

	timeoutMutex sync.Mutex
	timeout      time.Duration
}

// ListenQUIC binds a QUICListener to the given address, using a fresh self-signed certificate.
func ListenQUIC(address string) (*QUICListener, error) {
	if _, err := net.ResolveUDPAddr("udp", address); err != nil {
		return nil, newResolveError(address, err)
	}

	tlsConf, err := internal.ListenerTLSConfig()
	if err != nil {
		return nil, err
	}

	lst, err := quic.ListenAddr(address, tlsConf, internal.QUICConfig())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &QUICListener{
		listener: lst,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]quic.Connection),
		inChan:   make(chan quicDatagram, quicQueueSize),
	}
	go l.handle()

	return l, nil
}

func (l *QUICListener) handle() {
	for {
		conn, err := l.listener.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				log.WithFields(log.Fields{
					"listener": l,
					"error":    err,
				}).Warn("QUIC listener failed to accept connection")
			}
			return
		}

		log.WithFields(log.Fields{
			"listener": l,
			"peer":     conn.RemoteAddr(),
		}).Debug("QUIC listener accepted new connection")

		l.connsMutex.Lock()
		l.conns[conn.RemoteAddr().String()] = conn
		l.connsMutex.Unlock()

		go l.handleConn(conn)
	}
}

func (l *QUICListener) handleConn(conn quic.Connection) {
	defer func() {
		l.connsMutex.Lock()
		delete(l.conns, conn.RemoteAddr().String())
		l.connsMutex.Unlock()
	}()

	for {
		msg, err := conn.ReceiveMessage(context.Background())
		if err != nil {
			log.WithFields(log.Fields{
				"listener": l,
				"peer":     conn.RemoteAddr(),
				"error":    err,
			}).Debug("QUIC connection stopped receiving")
			return
		}

		select {
		case l.inChan <- quicDatagram{from: conn.RemoteAddr(), data: msg}:
		default:
		}
	}
}

func (l *QUICListener) ReceiveFrom(buf []byte) (n int, addr net.Addr, err error) {
	l.timeoutMutex.Lock()
	timeout := l.timeout
	l.timeoutMutex.Unlock()

	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}

	select {
	case d := <-l.inChan:
		n = copy(buf, d.data)
		addr = d.from

	case <-timeoutChan:
		err = errTimeout

	case <-l.ctx.Done():
		err = ErrClosed
	}
	return
}

func (l *QUICListener) SendTo(datagram []byte, addr net.Addr) error {
	l.connsMutex.Lock()
	conn, ok := l.conns[addr.String()]
	l.connsMutex.Unlock()

	if !ok {
		return fmt.Errorf("no QUIC connection to %v", addr)
	}
	return conn.SendMessage(datagram)
}

// SetTimeout for following ReceiveFrom calls. Zero blocks until a datagram arrives.
func (l *QUICListener) SetTimeout(timeout time.Duration) error {
	l.timeoutMutex.Lock()
	l.timeout = timeout
	l.timeoutMutex.Unlock()
	return nil
}

// Addr of the bound socket.
func (l *QUICListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close the listener and all of its connections.
func (l *QUICListener) Close() (err error) {
	l.cancel()

	if lErr := l.listener.Close(); lErr != nil {
		err = multierror.Append(err, lErr)
	}

	l.connsMutex.Lock()
	defer l.connsMutex.Unlock()

	for addr, conn := range l.conns {
		if cErr := conn.CloseWithError(internal.ApplicationShutdown, "listener closed"); cErr != nil {
			err = multierror.Append(err, cErr)
		}
		delete(l.conns, addr)
	}
	return
}

func (l *QUICListener) String() string {
	return fmt.Sprintf("quic://%v", l.listener.Addr())
}
