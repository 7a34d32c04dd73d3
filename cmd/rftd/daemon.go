// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rft-go/pkg/discovery"
	"github.com/dtn7/rft-go/pkg/files"
	"github.com/dtn7/rft-go/pkg/rft"
	"github.com/dtn7/rft-go/pkg/storage"
	"github.com/dtn7/rft-go/pkg/transport"
	"github.com/dtn7/rft-go/pkg/webapi"
)

// daemon bundles a responder node's components.
type daemon struct {
	catalog *files.Catalog
	servers []*rft.Server

	store     *storage.Store
	retention time.Duration

	api        *webapi.API
	httpServer *http.Server

	discovery *discovery.Manager

	records sync.WaitGroup

	stopSyn chan struct{}
	stopAck chan struct{}
}

// openListener for a Listen-configuration block and the largest segment size it supports.
func openListener(conf listenConf, segmentSize int) (l rft.PacketListener, maxSegmentSize int, err error) {
	switch conf.Protocol {
	case "udp":
		l, err = transport.ListenUDP(conf.Endpoint)
		maxSegmentSize = segmentSize

	case "quic":
		l, err = transport.ListenQUIC(conf.Endpoint)
		maxSegmentSize = transport.QUICSegmentSize

	case "rf95":
		var rf95Conn *transport.Rf95Conn
		if rf95Conn, err = transport.OpenRf95(conf.Device, conf.Frequency); err == nil {
			l = rf95Conn
			maxSegmentSize = rf95Conn.SegmentSize(rft.SequenceNumberSize)
		}

	default:
		err = fmt.Errorf("unknown listen.protocol \"%s\"", conf.Protocol)
	}

	if maxSegmentSize > segmentSize {
		maxSegmentSize = segmentSize
	}
	return
}

// newDaemon starts all components of a valid configuration. On error, already started components are closed.
func newDaemon(conf tomlConfig) (d *daemon, err error) {
	d = &daemon{
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
	defer func() {
		if err != nil {
			close(d.stopAck)
			_ = d.Close()
			d = nil
		}
	}()

	if d.catalog, err = files.NewCatalog(conf.Responder.Root, conf.Responder.Compress); err != nil {
		return
	}

	if conf.Store.Path != "" {
		if d.store, err = storage.NewStore(conf.Store.Path); err != nil {
			return
		}
		if d.retention, err = parseDuration("store.retention", conf.Store.Retention, 0); err != nil {
			return
		}
	}

	if conf.WebAPI.Listen != "" {
		router := mux.NewRouter()
		if d.store != nil {
			d.api = webapi.NewAPI(router, d.catalog, d.store)
		} else {
			d.api = webapi.NewAPI(router, d.catalog, nil)
		}

		d.httpServer = &http.Server{
			Addr:              conf.WebAPI.Listen,
			Handler:           d.api,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if httpErr := d.httpServer.ListenAndServe(); httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
				log.WithError(httpErr).Warn("Web API errored")
			}
		}()
	}

	serverConf, err := conf.Responder.serverConfig()
	if err != nil {
		return
	}
	serverConf.OnEvent = d.onEvent

	var announcements []discovery.Announcement
	for _, lc := range conf.Listen {
		l, segmentSize, lErr := openListener(lc, serverConf.SegmentSize)
		if lErr != nil {
			err = fmt.Errorf("listen %s %s: %w", lc.Protocol, lc.Endpoint, lErr)
			return
		}

		sc := serverConf
		sc.SegmentSize = segmentSize

		server := rft.NewServer(l, d.catalog, sc)
		if err = server.Start(); err != nil {
			_ = l.Close()
			return
		}
		d.servers = append(d.servers, server)

		log.WithFields(log.Fields{
			"protocol":     lc.Protocol,
			"endpoint":     lc.Endpoint,
			"segment size": segmentSize,
		}).Info("Started responder")

		if msg, ok, aErr := lc.announcement(conf.Responder.Node, segmentSize); aErr != nil {
			err = aErr
			return
		} else if ok {
			announcements = append(announcements, msg)
		}
	}

	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		interval := 10 * time.Second
		if conf.Discovery.Interval > 0 {
			interval = time.Duration(conf.Discovery.Interval) * time.Second
		}

		d.discovery, err = discovery.NewManager(
			conf.Responder.Node, nil, announcements, interval, conf.Discovery.IPv4, conf.Discovery.IPv6)
		if err != nil {
			return
		}
	}

	go d.handle()
	return
}

// handle prunes the transfer history.
func (d *daemon) handle() {
	defer close(d.stopAck)

	if d.store == nil || d.retention == 0 {
		<-d.stopSyn
		return
	}

	ticker := time.NewTicker(d.retention / 10)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopSyn:
			return

		case <-ticker.C:
			if n, err := d.store.DeleteOlderThan(time.Now().Add(-d.retention)); err != nil {
				log.WithError(err).Warn("Pruning the transfer history errored")
			} else if n > 0 {
				log.WithField("amount", n).Debug("Pruned the transfer history")
			}
		}
	}
}

// onEvent is called from the Servers' goroutines.
func (d *daemon) onEvent(e rft.Event) {
	if d.api != nil {
		d.api.Publish(e)
	}

	if d.store == nil || (e.Type != rft.TransferCompleted && e.Type != rft.TransferAbandoned) {
		return
	}

	d.records.Add(1)
	go func() {
		defer d.records.Done()
		d.record(e)
	}()
}

// record a finished transfer in the Store. Completed transfers are fingerprinted by reading the served file again.
func (d *daemon) record(e rft.Event) {
	ti := storage.NewTransferItem(storage.RoleResponder, e.Peer, e.Filename, e.Start)
	ti.Bytes = e.Bytes
	ti.Packets = e.Packets
	ti.Retransmissions = e.Retransmissions
	ti.Elapsed = e.Elapsed
	ti.Complete = e.Type == rft.TransferCompleted
	if e.Err != nil {
		ti.Reason = e.Err.Error()
	}

	if ti.Complete {
		if f, err := d.catalog.Open(e.Filename); err != nil {
			log.WithError(err).WithField("file", e.Filename).Debug("Failed to open file for fingerprinting")
		} else {
			if fp, fpErr := files.ReadFingerprint(f); fpErr == nil {
				ti.Fingerprint = fp.String()
			}
			_ = f.Close()
		}
	}

	if err := d.store.Push(ti); err != nil {
		log.WithError(err).WithField("transfer", ti).Warn("Failed to record transfer")
	}
}

// Close all components.
func (d *daemon) Close() error {
	var errs *multierror.Error

	select {
	case <-d.stopAck:
	default:
		close(d.stopSyn)
		<-d.stopAck
	}

	if d.discovery != nil {
		d.discovery.Close()
	}

	for _, server := range d.servers {
		if err := server.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if d.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.httpServer.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
		cancel()
	}
	if d.api != nil {
		d.api.Close()
	}

	d.records.Wait()

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if d.catalog != nil {
		if err := d.catalog.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}
