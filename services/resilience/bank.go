// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import "sync"

// BreakerBank owns one circuit breaker per operation kind.
//
// The bank is an explicit owned store constructed per executor, not a
// process-wide singleton: tearing down the executor tears down its
// breakers. Lookups for distinct operation ids never block each
// other beyond the map access.
//
// Thread Safety: Safe for concurrent use.
type BreakerBank struct {
	config BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerBank creates an empty bank using config for new breakers.
func NewBreakerBank(config BreakerConfig) *BreakerBank {
	return &BreakerBank{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for an operation id, creating it on first
// use.
func (b *BreakerBank) Get(operationID string) *CircuitBreaker {
	b.mu.RLock()
	cb, ok := b.breakers[operationID]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[operationID]; ok {
		return cb
	}
	cb = NewCircuitBreaker(operationID, b.config)
	b.breakers[operationID] = cb
	return cb
}

// Snapshots returns read-only copies of every breaker's state.
func (b *BreakerBank) Snapshots() []BreakerSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BreakerSnapshot, 0, len(b.breakers))
	for _, cb := range b.breakers {
		out = append(out, cb.Snapshot())
	}
	return out
}

// OpenCount returns the number of breakers not in the closed state.
func (b *BreakerBank) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, cb := range b.breakers {
		if cb.State() != CircuitClosed {
			n++
		}
	}
	return n
}

// Reset closes every breaker and clears its counts.
func (b *BreakerBank) Reset() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, cb := range b.breakers {
		cb.Reset()
	}
}
