// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import (
	"context"
	"sync"
)

// Repository persists thoughts across workflow runs.
//
// The engine treats persistence as best-effort: repository failures
// are logged and never abort a workflow.
type Repository interface {
	// InsertThought stores one thought.
	InsertThought(ctx context.Context, th *Thought) error

	// ThoughtsByProject returns all stored thoughts for a project,
	// in insertion order.
	ThoughtsByProject(ctx context.Context, projectID string) ([]*Thought, error)
}

// MemoryRepository is an in-memory Repository for tests and
// single-process use.
//
// Thread Safety: Safe for concurrent use.
type MemoryRepository struct {
	mu       sync.RWMutex
	byProj   map[string][]*Thought
	inserted int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byProj: make(map[string][]*Thought)}
}

// InsertThought stores one thought.
func (r *MemoryRepository) InsertThought(_ context.Context, th *Thought) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *th
	r.byProj[th.ProjectID] = append(r.byProj[th.ProjectID], &cp)
	r.inserted++
	return nil
}

// ThoughtsByProject returns stored thoughts for a project.
func (r *MemoryRepository) ThoughtsByProject(_ context.Context, projectID string) ([]*Thought, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.byProj[projectID]
	out := make([]*Thought, len(stored))
	copy(out, stored)
	return out, nil
}

// Inserted returns the total number of inserts, for tests.
func (r *MemoryRepository) Inserted() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inserted
}
