// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// ContentCache caches fetched file content keyed by location string.
//
// The cache is an optimization only: Get misses and Put failures are both
// harmless, and the analyzer behaves identically with no cache at all.
type ContentCache interface {
	Get(key string) (string, bool)
	Put(key string, content string) error
	Close() error
}

// BadgerCache is a ContentCache backed by a BadgerDB directory.
//
// Description:
//
//	Persists fetched source content across runs so repeated analyses of the
//	same repository skip the network. Truly per-run state (entity repository,
//	processed/failed import sets) never lives here, only immutable remote
//	file content, which is safe to reuse because locations pin a branch.
//
// Thread Safety: Safe for concurrent use (BadgerDB transactions).
type BadgerCache struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadgerCache opens (or creates) a cache at dir.
//
// Callers should treat failure as non-fatal and continue without a cache,
// mirroring how the service degrades when the cache directory is not
// writable.
func OpenBadgerCache(dir string, logger *slog.Logger) (*BadgerCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open fetch cache at %s: %w", dir, err)
	}

	return &BadgerCache{db: db, logger: logger}, nil
}

// Get returns cached content for key.
func (c *BadgerCache) Get(key string) (string, bool) {
	var content string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			content = string(val)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Debug("fetch cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}
	return content, true
}

// Put stores content under key.
func (c *BadgerCache) Put(key string, content string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(content))
	})
}

// Close closes the underlying database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
