// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rft-go/pkg/discovery"
	"github.com/dtn7/rft-go/pkg/files"
	"github.com/dtn7/rft-go/pkg/rft"
	"github.com/dtn7/rft-go/pkg/storage"
	"github.com/dtn7/rft-go/pkg/transport"
)

// discoveryTimeout bounds the search for a responder with the "auto" host.
const discoveryTimeout = 3 * time.Second

type options struct {
	host       string
	port       int
	transport  string
	device     string
	frequency  float64
	loss       int
	filename   string
	output     string
	decompress bool
	store      string
	conf       rft.Config
}

// resolve the responder's address. An "auto" host picks the first discovered responder of the selected transport
// and adopts its segment size. The rf95 transport broadcasts, its address is the modem's device.
func (opts *options) resolve() (address string, err error) {
	if opts.transport == "rf95" {
		return opts.device, nil
	}

	if opts.host != "auto" {
		if _, _, splitErr := net.SplitHostPort(opts.host); splitErr == nil {
			return opts.host, nil
		}
		return net.JoinHostPort(opts.host, strconv.Itoa(opts.port)), nil
	}

	peers, err := discovery.Discover(discoveryTimeout, false)
	if err != nil {
		return
	}

	for _, peer := range peers {
		if peer.Announcement.Transport.String() != opts.transport {
			continue
		}

		log.WithField("peer", peer).Info("Discovered responder")
		if peer.Announcement.SegmentSize > 0 {
			opts.conf.SegmentSize = int(peer.Announcement.SegmentSize)
		}
		return peer.Address(), nil
	}

	err = fmt.Errorf("no %s responder was discovered within %v", opts.transport, discoveryTimeout)
	return
}

// dial the responder by the selected transport, optionally dropping outbound datagrams.
func (opts *options) dial(address string) (conn transport.Conn, err error) {
	switch opts.transport {
	case "udp":
		conn, err = transport.DialUDP(address)

	case "quic":
		conn, err = transport.DialQUIC(address)
		if err == nil && opts.conf.SegmentSize > transport.QUICSegmentSize {
			opts.conf.SegmentSize = transport.QUICSegmentSize
		}

	case "rf95":
		if opts.device == "" {
			err = fmt.Errorf("transport rf95 requires a device")
			return
		}

		var rf95Conn *transport.Rf95Conn
		if rf95Conn, err = transport.OpenRf95(opts.device, opts.frequency); err == nil {
			conn = rf95Conn
			if segmentSize := rf95Conn.SegmentSize(rft.SequenceNumberSize); opts.conf.SegmentSize > segmentSize {
				opts.conf.SegmentSize = segmentSize
			}
		}

	default:
		err = fmt.Errorf("unknown transport \"%s\"", opts.transport)
	}

	if err != nil || opts.loss == 0 {
		return
	}

	lossy, lossErr := transport.NewLossyNow(conn, opts.loss)
	if lossErr != nil {
		_ = conn.Close()
		return nil, lossErr
	}
	return lossy, nil
}

// fetch a file as configured by the options and write it to the output file.
func fetch(ctx context.Context, opts options) (res rft.Result, err error) {
	address, err := opts.resolve()
	if err != nil {
		return
	}

	conn, err := opts.dial(address)
	if err != nil {
		return
	}
	defer conn.Close()

	output := opts.output
	if output == "" {
		output = path.Base(opts.filename)
	}

	sink, err := files.Create(output, opts.decompress)
	if err != nil {
		return
	}

	start := time.Now()
	res, fetchErr := rft.NewRequester(conn, opts.conf).Fetch(ctx, opts.filename, sink)
	if closeErr := sink.Close(); closeErr != nil {
		fetchErr = multierror.Append(fetchErr, closeErr)
	}
	if fetchErr != nil {
		err = fetchErr
	}

	if opts.store != "" {
		if storeErr := record(opts.store, address, opts.filename, start, res, sink, err); storeErr != nil {
			log.WithError(storeErr).Warn("Failed to record transfer")
		}
	}
	return
}

// record a transfer in the Store within the given directory.
func record(dir, peer, filename string, start time.Time, res rft.Result, sink *files.Sink, cause error) error {
	store, err := storage.NewStore(dir)
	if err != nil {
		return err
	}

	ti := storage.NewTransferItem(storage.RoleRequester, peer, filename, start)
	ti.Bytes = res.Bytes
	ti.Packets = res.Packets
	ti.Attempts = res.Attempts
	ti.Retransmissions = res.Retransmissions
	ti.Elapsed = time.Since(start)
	ti.Complete = cause == nil
	if cause != nil {
		ti.Reason = cause.Error()
	} else {
		ti.Fingerprint = sink.Fingerprint().String()
	}

	return multierror.Append(store.Push(ti), store.Close()).ErrorOrNil()
}
