// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rft

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	errLinger   = errors.New("peer went silent")
	errDrained  = errors.New("terminal packet was not acknowledged")
	errRestart  = errors.New("peer restarted its request")
	errShutdown = errors.New("server shut down")
)

// FileOpener resolves requested file names.
type FileOpener interface {
	Open(name string) (io.ReadCloser, error)
}

// ServerConfig of a Server.
type ServerConfig struct {
	// Timeout for each receive. It paces the checks for shutdown and silent peers.
	Timeout time.Duration

	// Linger is the time a transfer is kept without any control Packet before being abandoned.
	Linger time.Duration

	// DrainLinger replaces Linger once the terminal Packet is outstanding. Zero uses Linger.
	DrainLinger time.Duration

	// SegmentSize is the largest payload of a Packet.
	SegmentSize int

	// RetransmitGuard, see Responder.SetRetransmitGuard.
	RetransmitGuard time.Duration

	// OnEvent is called from the Server's goroutine for each Event, if set.
	OnEvent func(Event)
}

// DefaultServerConfig returns a ServerConfig matching the DefaultConfig of a Requester.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Timeout:         DefaultTimeout,
		Linger:          10 * time.Second,
		DrainLinger:     5 * DefaultTimeout,
		SegmentSize:     DefaultSegmentSize,
		RetransmitGuard: DefaultTimeout / 2,
	}
}

// transfer is the Server's state of its active transfer.
type transfer struct {
	peer      net.Addr
	filename  string
	file      io.ReadCloser
	responder *Responder
	packets   uint64
	start     time.Time
	lastSeen  time.Time
}

// Server answers file requests on a PacketListener, one transfer at a time.
//
// Each datagram of a control Packet's size from the active transfer's peer is handled as a control Packet. Any other
// datagram from this peer restarts the transfer with a new request, unless it repeats the active request after its
// first Packet was acknowledged. Such a request can only be a duplicate, because a requester restarts only before
// accepting its first Packet. Datagrams from other peers are dropped while a transfer is active.
type Server struct {
	listener PacketListener
	files    FileOpener
	conf     ServerConfig

	active *transfer
	buf    []byte

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewServer on a bound PacketListener. The Server takes over the PacketListener and closes it on Close.
func NewServer(listener PacketListener, files FileOpener, conf ServerConfig) *Server {
	return &Server{
		listener: listener,
		files:    files,
		conf:     conf,
		buf:      make([]byte, SequenceNumberSize+conf.SegmentSize+1),
		stopSyn:  make(chan struct{}),
		stopAck:  make(chan struct{}),
	}
}

func (serv *Server) String() string {
	return fmt.Sprintf("Server(%v)", serv.listener)
}

// Start the Server's goroutine.
func (serv *Server) Start() error {
	if serv.conf.Timeout <= 0 || serv.conf.Linger <= 0 || serv.conf.DrainLinger < 0 {
		return fmt.Errorf("timeout and linger must be positive, drain linger must not be negative")
	}
	if serv.conf.SegmentSize <= 0 {
		return fmt.Errorf("segment size must be positive, not %d", serv.conf.SegmentSize)
	}
	if err := serv.listener.SetTimeout(serv.conf.Timeout); err != nil {
		return err
	}

	go serv.handle()
	return nil
}

// Close the Server, abandon an active transfer and close the PacketListener.
func (serv *Server) Close() error {
	close(serv.stopSyn)
	<-serv.stopAck

	return nil
}

func (serv *Server) handle() {
	defer func() {
		serv.finish(TransferAbandoned, errShutdown)
		_ = serv.listener.Close()
		close(serv.stopAck)
	}()

	for {
		select {
		case <-serv.stopSyn:
			return

		default:
			n, addr, err := serv.listener.ReceiveFrom(serv.buf)
			if err != nil {
				if IsTimeout(err) {
					serv.checkLinger()
					continue
				}

				log.WithFields(log.Fields{
					"server": serv,
					"error":  err,
				}).Warn("Server failed to receive, waiting for shutdown")

				<-serv.stopSyn
				return
			}

			// Datagrams of other peers must not postpone abandoning a silent transfer.
			serv.checkLinger()

			if n > SequenceNumberSize+serv.conf.SegmentSize {
				serv.handleOversized(n, addr)
				continue
			}

			serv.handleDatagram(serv.buf[:n], addr)
		}
	}
}

func (serv *Server) emit(e Event) {
	if serv.conf.OnEvent != nil {
		serv.conf.OnEvent(e)
	}
}

func (serv *Server) send(p Packet, addr net.Addr) {
	if err := serv.listener.SendTo(p.Bytes(), addr); err != nil {
		log.WithFields(log.Fields{
			"server": serv,
			"peer":   addr,
			"packet": p,
			"error":  err,
		}).Warn("Server failed to send packet")
	}
}

func (serv *Server) handleDatagram(datagram []byte, addr net.Addr) {
	if serv.active != nil && serv.active.peer.String() != addr.String() {
		log.WithFields(log.Fields{
			"server": serv,
			"peer":   addr,
		}).Debug("Dropping datagram from another peer while busy")
		return
	}

	if serv.active != nil && IsControlDatagram(datagram) {
		serv.handleControl(datagram)
		return
	}

	filename := string(datagram)
	if serv.active != nil && serv.active.filename == filename && serv.active.responder.Cursor() > 0 &&
		!serv.active.responder.Draining() {
		log.WithFields(log.Fields{
			"server": serv,
			"peer":   addr,
			"file":   filename,
		}).Debug("Dropping duplicated request of an active transfer")
		return
	}

	if serv.active != nil {
		serv.finish(TransferAbandoned, errRestart)
	}
	serv.handleRequest(filename, addr)
}

// handleOversized rejects a datagram exceeding the segment size, which was truncated by the PacketListener.
// An active transfer is not affected.
func (serv *Server) handleOversized(n int, addr net.Addr) {
	logger := log.WithFields(log.Fields{
		"server": serv,
		"peer":   addr,
		"size":   n,
	})

	if serv.active != nil && serv.active.peer.String() != addr.String() {
		logger.Debug("Dropping oversized datagram from another peer while busy")
		return
	}

	err := fmt.Errorf("%w: received at least %d bytes for a segment size of %d",
		ErrSegmentSize, n, serv.conf.SegmentSize)
	logger.WithError(err).Warn("Rejecting oversized datagram")

	serv.emit(Event{Type: RequestRejected, Peer: addr.String(), Start: time.Now(), Err: err})
}

func (serv *Server) handleRequest(filename string, addr net.Addr) {
	log.WithFields(log.Fields{
		"server": serv,
		"peer":   addr,
		"file":   filename,
	}).Info("File requested")

	file, err := serv.files.Open(filename)
	if err != nil {
		log.WithFields(log.Fields{
			"server": serv,
			"peer":   addr,
			"file":   filename,
			"error":  err,
		}).Warn("Rejecting request")

		serv.emit(Event{Type: RequestRejected, Peer: addr.String(), Filename: filename, Start: time.Now(), Err: err})
		return
	}

	responder := NewResponder(file, serv.conf.SegmentSize)
	responder.SetRetransmitGuard(serv.conf.RetransmitGuard)

	p, err := responder.Start()
	if err != nil {
		_ = file.Close()

		log.WithFields(log.Fields{
			"server": serv,
			"peer":   addr,
			"file":   filename,
			"error":  err,
		}).Warn("Rejecting request, reading file failed")

		serv.emit(Event{Type: RequestRejected, Peer: addr.String(), Filename: filename, Start: time.Now(), Err: err})
		return
	}

	now := time.Now()
	serv.active = &transfer{
		peer:      addr,
		filename:  filename,
		file:      file,
		responder: responder,
		packets:   1,
		start:     now,
		lastSeen:  now,
	}

	serv.emit(Event{Type: RequestReceived, Peer: addr.String(), Filename: filename, Start: now})
	serv.send(p, addr)
}

func (serv *Server) handleControl(datagram []byte) {
	t := serv.active
	t.lastSeen = time.Now()

	ctrl, _ := ParsePacket(datagram)
	p, send, err := t.responder.HandleControl(ctrl.SequenceNumber)
	if err != nil {
		log.WithFields(log.Fields{
			"server": serv,
			"peer":   t.peer,
			"file":   t.filename,
			"error":  err,
		}).Warn("Transfer failed")

		serv.finish(TransferAbandoned, err)
		return
	}

	if send {
		if p.SequenceNumber+1 > t.packets {
			t.packets = p.SequenceNumber + 1
		}
		serv.send(p, t.peer)
	}

	if t.responder.Finished() {
		serv.finish(TransferCompleted, nil)
	}
}

func (serv *Server) checkLinger() {
	if serv.active == nil {
		return
	}

	silence := time.Since(serv.active.lastSeen)
	if serv.active.responder.Draining() && serv.conf.DrainLinger > 0 && silence > serv.conf.DrainLinger {
		serv.finish(TransferAbandoned, errDrained)
	} else if silence > serv.conf.Linger {
		serv.finish(TransferAbandoned, errLinger)
	}
}

// finish the active transfer, if any.
func (serv *Server) finish(et EventType, cause error) {
	t := serv.active
	if t == nil {
		return
	}
	serv.active = nil

	if err := t.file.Close(); err != nil {
		log.WithFields(log.Fields{
			"server": serv,
			"file":   t.filename,
			"error":  err,
		}).Debug("Closing file errored")
	}

	e := Event{
		Type:            et,
		Peer:            t.peer.String(),
		Filename:        t.filename,
		Bytes:           t.responder.Bytes(),
		Packets:         t.packets,
		Retransmissions: t.responder.Retransmissions(),
		Start:           t.start,
		Elapsed:         time.Since(t.start),
		Err:             cause,
	}

	logger := log.WithFields(log.Fields{
		"server":  serv,
		"peer":    e.Peer,
		"file":    e.Filename,
		"bytes":   e.Bytes,
		"elapsed": e.Elapsed,
	})
	if cause != nil {
		logger.WithError(cause).Info("Transfer abandoned")
	} else {
		logger.Info("Transfer completed")
	}

	serv.emit(e)
}
