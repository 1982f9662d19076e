// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import (
	"fmt"
	"strings"
	"sync"
)

// Store is an append-only arena of thoughts for a single workflow run.
//
// Thoughts live in a flat map keyed by id; parent/child links are id
// references maintained in a child index. Each run owns its own Store,
// so concurrent workflows for different projects never share state.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	thoughts map[string]*Thought
	children map[string][]string
	order    []string // insertion order, for deterministic iteration
}

// NewStore creates an empty thought store.
func NewStore() *Store {
	return &Store{
		thoughts: make(map[string]*Thought),
		children: make(map[string][]string),
	}
}

// Add appends a thought to the store.
//
// Inputs:
//   - th: The thought to add. Confidence must be in [0,1] and, when
//     ParentID is set, the parent must already be present.
//
// Outputs:
//   - error: ErrDuplicateThought, ErrConfidenceRange, ErrEmptyContent,
//     or ErrParentNotFound on invariant violations.
func (s *Store) Add(th *Thought) error {
	if th.Confidence < 0 || th.Confidence > 1 {
		return fmt.Errorf("thought %s: %w", th.ID, ErrConfidenceRange)
	}
	if strings.TrimSpace(th.Content) == "" {
		return fmt.Errorf("thought %s: %w", th.ID, ErrEmptyContent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.thoughts[th.ID]; ok {
		return fmt.Errorf("thought %s: %w", th.ID, ErrDuplicateThought)
	}
	if th.ParentID != "" {
		if _, ok := s.thoughts[th.ParentID]; !ok {
			return fmt.Errorf("thought %s parent %s: %w", th.ID, th.ParentID, ErrParentNotFound)
		}
		s.children[th.ParentID] = append(s.children[th.ParentID], th.ID)
	}

	s.thoughts[th.ID] = th
	s.order = append(s.order, th.ID)
	return nil
}

// Get returns the thought with the given id, or nil.
func (s *Store) Get(id string) *Thought {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thoughts[id]
}

// Children returns the ids of a thought's children in insertion order.
func (s *Store) Children(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kids := s.children[id]
	out := make([]string, len(kids))
	copy(out, kids)
	return out
}

// Roots returns all parentless thoughts in insertion order.
func (s *Store) Roots() []*Thought {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var roots []*Thought
	for _, id := range s.order {
		if th := s.thoughts[id]; th.IsRoot() {
			roots = append(roots, th)
		}
	}
	return roots
}

// Leaves returns all childless thoughts in insertion order.
func (s *Store) Leaves() []*Thought {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var leaves []*Thought
	for _, id := range s.order {
		if len(s.children[id]) == 0 {
			leaves = append(leaves, s.thoughts[id])
		}
	}
	return leaves
}

// All returns every thought in insertion order.
func (s *Store) All() []*Thought {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Thought, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.thoughts[id])
	}
	return out
}

// Len returns the number of stored thoughts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.thoughts)
}

// CreationIndex returns the insertion position of a thought id, used
// for deterministic tie-breaking. Unknown ids sort last.
func (s *Store) CreationIndex(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, oid := range s.order {
		if oid == id {
			return i
		}
	}
	return len(s.order)
}

// PathFromRoot walks parent links from the given thought up to its
// root and returns the ids in root-to-leaf order.
func (s *Store) PathFromRoot(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rev []string
	cur := s.thoughts[id]
	for cur != nil {
		rev = append(rev, cur.ID)
		if cur.ParentID == "" {
			break
		}
		cur = s.thoughts[cur.ParentID]
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}
