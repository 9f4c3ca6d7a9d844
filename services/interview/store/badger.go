// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists sessions, questions, answers, anti-cheat events,
// strikes, and summaries in an embedded BadgerDB. Badger's serializable
// transactions provide the atomic compare-and-swap and counter semantics
// the session engine relies on; no external database is required.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DBConfig holds configuration for the underlying BadgerDB instance.
type DBConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory keeps all data in RAM. Used for tests and for local
	// development without a data directory.
	InMemory bool

	// SyncWrites forces an fsync on every commit. On for production.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// 0 disables GC (in-memory databases never run it).
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites a
	// value log file.
	GCDiscardRatio float64

	// Logger receives BadgerDB's internal messages. nil silences them.
	Logger *slog.Logger
}

// DefaultDBConfig returns production defaults for a persistent database.
func DefaultDBConfig(path string) DBConfig {
	return DBConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryDBConfig returns a configuration for tests: no disk, no sync,
// no GC.
func InMemoryDBConfig() DBConfig {
	return DBConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Error(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Info(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debug(fmt.Sprintf(format, args...)) }

// openBadger opens the database described by cfg, creating the directory
// for persistent databases when missing.
func openBadger(cfg DBConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// gcLoop periodically triggers value log garbage collection until stopCh
// closes. ErrNoRewrite means nothing needed collecting.
func gcLoop(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			err := db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// txnRetries is the number of attempts for read-modify-write transactions
// that lose a serialization conflict to a concurrent writer.
const txnRetries = 3

// update runs fn in a read-write transaction, retrying on conflict.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < txnRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}
