// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/mindweave-ai/mindweave/pkg/logging"
)

// BadgerRepository persists thoughts to an embedded BadgerDB store.
//
// Keys are laid out as "thought/{projectID}/{seq}" where seq is a
// zero-padded insertion counter, so a prefix scan returns a project's
// thoughts in insertion order.
//
// Thread Safety: Safe for concurrent use; BadgerDB transactions
// provide isolation.
type BadgerRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *logging.Logger
}

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
}

// NewBadgerRepository opens (or creates) the embedded store.
//
// The returned repository must be closed with Close().
func NewBadgerRepository(cfg BadgerConfig, log *logging.Logger) (*BadgerRepository, error) {
	if log == nil {
		log = logging.Default()
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", cfg.Path, err)
	}

	seq, err := db.GetSequence([]byte("seq/thought"), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating thought sequence: %w", err)
	}

	return &BadgerRepository{db: db, seq: seq, log: log}, nil
}

// InsertThought stores one thought.
func (r *BadgerRepository) InsertThought(ctx context.Context, th *Thought) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("marshaling thought %s: %w", th.ID, err)
	}
	n, err := r.seq.Next()
	if err != nil {
		return fmt.Errorf("allocating sequence: %w", err)
	}
	key := fmt.Sprintf("thought/%s/%012d", th.ProjectID, n)

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("storing thought %s: %w", th.ID, err)
	}
	return nil
}

// ThoughtsByProject returns a project's thoughts in insertion order.
func (r *BadgerRepository) ThoughtsByProject(ctx context.Context, projectID string) ([]*Thought, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(fmt.Sprintf("thought/%s/", projectID))
	var out []*Thought

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var th Thought
				if err := json.Unmarshal(val, &th); err != nil {
					// Skip corrupt entries rather than failing the scan.
					r.log.Warn("skipping corrupt thought record", "key", string(it.Item().Key()), "error", err)
					return nil
				}
				out = append(out, &th)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning thoughts for project %s: %w", projectID, err)
	}
	return out, nil
}

// Close releases the sequence and the database.
func (r *BadgerRepository) Close() error {
	if err := r.seq.Release(); err != nil {
		r.log.Warn("failed to release thought sequence", "error", err)
	}
	return r.db.Close()
}

var _ Repository = (*BadgerRepository)(nil)
