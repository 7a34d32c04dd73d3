// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestConfApply(t *testing.T) {
	defer func() {
		log.SetLevel(log.InfoLevel)
		log.SetReportCaller(false)
		log.SetFormatter(&log.TextFormatter{})
	}()

	tests := []struct {
		conf  Conf
		level log.Level
		valid bool
	}{
		{Conf{}, log.InfoLevel, true},
		{Conf{Level: "debug"}, log.DebugLevel, true},
		{Conf{Level: "warn", Format: "json"}, log.WarnLevel, true},
		{Conf{Level: "verbose"}, log.InfoLevel, false},
		{Conf{Format: "xml"}, log.InfoLevel, false},
	}

	for _, test := range tests {
		log.SetLevel(log.InfoLevel)

		if err := test.conf.Apply(); (err == nil) != test.valid {
			t.Fatalf("%+v: expected valid = %t, got %v", test.conf, test.valid, err)
		}
		if lvl := log.GetLevel(); lvl != test.level {
			t.Fatalf("%+v: expected level %v, got %v", test.conf, test.level, lvl)
		}
	}

	if err := (Conf{Format: "json"}).Apply(); err != nil {
		t.Fatal(err)
	} else if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Fatalf("formatter is not JSON")
	}
}
