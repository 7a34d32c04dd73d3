// SPDX-FileCopyrightText: 2022 The dtn7 Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"os"
	"path"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"
)

const dirBadger string = "db"

// Store implements a persistent history of TransferItems.
type Store struct {
	bh *badgerhold.Store

	badgerDir string
}

// NewStore creates a new Store or opens an existing Store from the given path.
func NewStore(dir string) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &Store{
			bh:        bh,
			badgerDir: badgerDir,
		}
	}
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// Push a TransferItem to the Store. An existing TransferItem with the same Id is replaced.
func (s *Store) Push(ti TransferItem) error {
	log.WithFields(log.Fields{
		"transfer": ti.Id,
		"file":     ti.Filename,
		"complete": ti.Complete,
	}).Debug("Store pushes TransferItem")

	return s.bh.Upsert(ti.Id, ti)
}

// QueryId fetches the TransferItem for the requested Id.
func (s *Store) QueryId(id string) (ti TransferItem, err error) {
	err = s.bh.Get(id, &ti)
	return
}

// QueryFilename fetches all TransferItems of a file, sorted by their start time.
func (s *Store) QueryFilename(filename string) (tis []TransferItem, err error) {
	if err = s.bh.Find(&tis, badgerhold.Where("Filename").Eq(filename)); err == nil {
		sortItems(tis)
	}
	return
}

// QueryAll fetches all TransferItems, sorted by their start time.
func (s *Store) QueryAll() (tis []TransferItem, err error) {
	if err = s.bh.Find(&tis, nil); err == nil {
		sortItems(tis)
	}
	return
}

// KnowsTransfer checks if such a TransferItem is known.
func (s *Store) KnowsTransfer(id string) bool {
	_, err := s.QueryId(id)
	return err != badgerhold.ErrNotFound
}

// DeleteOlderThan removes all TransferItems started before the given time and returns their amount.
func (s *Store) DeleteOlderThan(t time.Time) (n int, err error) {
	var tis []TransferItem
	if err = s.bh.Find(&tis, badgerhold.Where("Started").Lt(t)); err != nil {
		return
	}

	for _, ti := range tis {
		logger := log.WithField("transfer", ti.Id)
		if delErr := s.bh.Delete(ti.Id, TransferItem{}); delErr != nil {
			logger.WithError(delErr).Warn("Failed to delete old TransferItem")
			err = delErr
		} else {
			logger.Debug("Deleted old TransferItem")
			n++
		}
	}
	return
}

func sortItems(tis []TransferItem) {
	sort.Slice(tis, func(i, j int) bool { return tis[i].Started.Before(tis[j].Started) })
}
