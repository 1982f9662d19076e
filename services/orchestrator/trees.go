// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"sync"

	"github.com/mindweave-ai/mindweave/services/thought"
)

// treeCache keeps the last finished tree per project. A new workflow
// run replaces the previous tree wholesale; trees are never mutated
// in place.
type treeCache struct {
	mu    sync.RWMutex
	trees map[string]*thought.ThoughtTree
}

func newTreeCache() *treeCache {
	return &treeCache{trees: make(map[string]*thought.ThoughtTree)}
}

func (c *treeCache) put(projectID string, tree *thought.ThoughtTree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trees[projectID] = tree
}

func (c *treeCache) get(projectID string) *thought.ThoughtTree {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trees[projectID]
}
