// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging configures the logrus standard logger for the rft binaries.
package logging

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Conf describes the Logging-configuration block.
type Conf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// Apply this configuration to the standard logger. An invalid level or format results in an error, while the
// remaining settings are still applied.
func (conf Conf) Apply() (err error) {
	if conf.Level != "" {
		if lvl, lvlErr := log.ParseLevel(conf.Level); lvlErr != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    lvlErr,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
			err = lvlErr
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.WithField("format", conf.Format).Warn("Unknown logging format")
		err = fmt.Errorf("unknown logging format %q", conf.Format)
	}

	return
}
