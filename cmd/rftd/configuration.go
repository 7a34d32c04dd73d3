// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/rft-go/internal/logging"
	"github.com/dtn7/rft-go/pkg/discovery"
	"github.com/dtn7/rft-go/pkg/rft"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging   logging.Conf
	Responder responderConf
	Listen    []listenConf
	Store     storeConf
	Discovery discoveryConf
	WebAPI    webAPIConf `toml:"webapi"`
}

// responderConf describes the Responder-configuration block.
type responderConf struct {
	Node            string
	Root            string
	Compress        bool
	Timeout         string
	Linger          string
	DrainLinger     string `toml:"drain-linger"`
	SegmentSize     int    `toml:"segment-size"`
	RetransmitGuard string `toml:"retransmit-guard"`
}

// listenConf describes a Listen-configuration block. Device and Frequency are only used by rf95.
type listenConf struct {
	Protocol  string
	Endpoint  string
	Device    string
	Frequency float64
}

// storeConf describes the Store-configuration block. An empty Path disables the transfer history.
type storeConf struct {
	Path      string
	Retention string
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4     bool
	IPv6     bool
	Interval uint
}

// webAPIConf describes the WebAPI-configuration block. An empty Listen disables the HTTP interface.
type webAPIConf struct {
	Listen string
}

// parseDuration of a configuration field, falling back to def for an empty string.
func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	} else if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func parseListenPort(endpoint string) (port int, err error) {
	var portStr string
	_, portStr, err = net.SplitHostPort(endpoint)
	if err != nil {
		return
	}
	port, err = strconv.Atoi(portStr)
	return
}

// serverConfig derives the rft.ServerConfig from the Responder-configuration block.
func (conf responderConf) serverConfig() (sc rft.ServerConfig, err error) {
	sc = rft.DefaultServerConfig()

	var errs *multierror.Error
	var durErr error

	if sc.Timeout, durErr = parseDuration("responder.timeout", conf.Timeout, sc.Timeout); durErr != nil {
		errs = multierror.Append(errs, durErr)
	}
	if sc.Linger, durErr = parseDuration("responder.linger", conf.Linger, sc.Linger); durErr != nil {
		errs = multierror.Append(errs, durErr)
	}
	if sc.DrainLinger, durErr = parseDuration(
		"responder.drain-linger", conf.DrainLinger, sc.DrainLinger); durErr != nil {
		errs = multierror.Append(errs, durErr)
	}
	if sc.RetransmitGuard, durErr = parseDuration(
		"responder.retransmit-guard", conf.RetransmitGuard, sc.RetransmitGuard); durErr != nil {
		errs = multierror.Append(errs, durErr)
	}

	switch {
	case conf.SegmentSize == 0:
	case conf.SegmentSize < 0:
		errs = multierror.Append(errs, fmt.Errorf("responder.segment-size must be positive"))
	default:
		sc.SegmentSize = conf.SegmentSize
	}

	err = errs.ErrorOrNil()
	return
}

// announcement for a Listen-configuration block. Only UDP and QUIC listeners are announced.
func (conf listenConf) announcement(node string, segmentSize int) (msg discovery.Announcement, ok bool, err error) {
	var tt discovery.TransportType
	switch conf.Protocol {
	case "udp":
		tt = discovery.UDP
	case "quic":
		tt = discovery.QUIC
	default:
		return
	}

	port, err := parseListenPort(conf.Endpoint)
	if err != nil {
		return
	}

	msg = discovery.Announcement{
		Transport:   tt,
		Node:        node,
		Port:        uint(port),
		SegmentSize: uint(segmentSize),
	}
	ok = true
	return
}

// check the configuration for errors which would otherwise only show up while starting the daemon.
func (conf tomlConfig) check() error {
	var errs *multierror.Error

	if conf.Responder.Root == "" {
		errs = multierror.Append(errs, fmt.Errorf("responder.root is empty"))
	}
	if len(conf.Listen) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("no listen block is configured"))
	}

	for i, l := range conf.Listen {
		switch l.Protocol {
		case "udp", "quic":
			if _, err := parseListenPort(l.Endpoint); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("listen[%d].endpoint: %w", i, err))
			}

		case "rf95":
			if l.Device == "" {
				errs = multierror.Append(errs, fmt.Errorf("listen[%d].device is empty", i))
			}

		default:
			errs = multierror.Append(errs, fmt.Errorf("unknown listen[%d].protocol \"%s\"", i, l.Protocol))
		}
	}

	if _, err := conf.Responder.serverConfig(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, err := parseDuration("store.retention", conf.Store.Retention, 0); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

// parseConfig reads the TOML configuration file and applies its logging block. Invalid logging settings are only
// reported.
func parseConfig(filename string) (conf tomlConfig, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	_ = conf.Logging.Apply()

	err = conf.check()
	return
}
