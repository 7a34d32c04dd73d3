// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// rft-get fetches a single file from a rft responder.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/anacrolix/tagflag"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rft-go/internal/logging"
	"github.com/dtn7/rft-go/pkg/rft"
)

var flags = struct {
	Timeout     time.Duration `help:"receive timeout, a silent stream is stalled after it"`
	Attempts    int           `help:"limit of attempts, zero retries forever"`
	Backoff     time.Duration `help:"delay before the second attempt, doubled for each following one"`
	MaxStalls   int           `help:"limit of consecutive stalls within a started stream, zero for unlimited"`
	SegmentSize int           `help:"largest payload of a packet, must match the responder"`
	Port        int           `help:"responder port, unless given as host:port"`
	Transport   string        `help:"udp, quic or rf95"`
	Device      string        `help:"serial device of the rf95modem, e.g., /dev/ttyUSB0"`
	Frequency   float64       `help:"rf95modem frequency in MHz, unchanged if zero"`
	Loss        int           `help:"percentage of outbound datagrams to drop, for testing"`
	Decompress  bool          `help:"xz decompress the received file"`
	Output      string        `help:"output file, defaults to the file name's base"`
	LogLevel    string        `help:"panic, fatal, error, warn, info, debug or trace"`
	Config      string        `help:"TOML file with a [logging] block"`
	Store       string        `help:"directory of the transfer history, disabled if empty"`
	tagflag.StartPos
	Host     string `help:"responder host or host:port, \"auto\" for local discovery, ignored for rf95"`
	Filename string `help:"requested file name"`
}{
	Timeout:     rft.DefaultTimeout,
	SegmentSize: rft.DefaultSegmentSize,
	Port:        rft.DefaultPort,
	Transport:   "udp",
}

// fileConfig describes the optional TOML-configuration.
type fileConfig struct {
	Logging logging.Conf
}

func setupLogging() {
	var conf fileConfig
	if flags.Config != "" {
		if _, err := toml.DecodeFile(flags.Config, &conf); err != nil {
			log.WithError(err).WithField("config", flags.Config).Fatal("Failed to parse config")
		}
	}
	if flags.LogLevel != "" {
		conf.Logging.Level = flags.LogLevel
	}

	_ = conf.Logging.Apply()
}

func main() {
	tagflag.Parse(&flags)
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := options{
		host:       flags.Host,
		port:       flags.Port,
		transport:  flags.Transport,
		device:     flags.Device,
		frequency:  flags.Frequency,
		loss:       flags.Loss,
		filename:   flags.Filename,
		output:     flags.Output,
		decompress: flags.Decompress,
		store:      flags.Store,
		conf: rft.Config{
			Timeout:     flags.Timeout,
			SegmentSize: flags.SegmentSize,
			MaxStalls:   flags.MaxStalls,
			Retry: rft.RetryPolicy{
				MaxAttempts: flags.Attempts,
				Backoff:     flags.Backoff,
				MaxBackoff:  10 * flags.Backoff,
			},
		},
	}

	res, err := fetch(ctx, opts)
	if err != nil {
		log.WithFields(log.Fields{
			"host":  flags.Host,
			"file":  flags.Filename,
			"error": err,
		}).Fatal("Transfer failed")
	}

	fmt.Println(res)
}
