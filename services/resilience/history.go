// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SystemSnapshot captures process state at the moment of a failure.
type SystemSnapshot struct {
	Goroutines   int    `json:"goroutines"`
	HeapBytes    uint64 `json:"heap_bytes"`
	OpenBreakers int    `json:"open_breakers"`
}

// FailureRecord is one entry in the bounded failure history.
type FailureRecord struct {
	ID                 string         `json:"id"`
	OperationID        string         `json:"operation_id"`
	Error              string         `json:"error"`
	Timestamp          time.Time      `json:"timestamp"`
	ExecutionTimeMs    int64          `json:"execution_time_ms"`
	Snapshot           SystemSnapshot `json:"snapshot"`
	RecoveryAttempted  bool           `json:"recovery_attempted"`
	RecoveryStrategy   string         `json:"recovery_strategy,omitempty"`
	RecoveryDurationMs int64          `json:"recovery_duration_ms,omitempty"`
}

// FailureHistory is a fixed-capacity ring buffer of failure records.
// Once full, the oldest entry is evicted on insert.
//
// Thread Safety: Safe for concurrent use.
type FailureHistory struct {
	mu      sync.RWMutex
	records []FailureRecord
	next    int
	full    bool
}

// NewFailureHistory creates a history with the given capacity.
// A non-positive capacity defaults to 100.
func NewFailureHistory(capacity int) *FailureHistory {
	if capacity <= 0 {
		capacity = 100
	}
	return &FailureHistory{
		records: make([]FailureRecord, capacity),
	}
}

// Append inserts a record, evicting the oldest when full. A missing
// id or timestamp is filled in.
func (h *FailureHistory) Append(rec FailureRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.next] = rec
	h.next++
	if h.next == len(h.records) {
		h.next = 0
		h.full = true
	}
}

// Len returns the number of stored records.
func (h *FailureHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.records)
	}
	return h.next
}

// Recent returns up to n records, newest first.
func (h *FailureHistory) Recent(n int) []FailureRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.full {
		size = len(h.records)
	}
	if n > size {
		n = size
	}

	out := make([]FailureRecord, 0, n)
	for i := 0; i < n; i++ {
		idx := h.next - 1 - i
		if idx < 0 {
			idx += len(h.records)
		}
		out = append(out, h.records[idx])
	}
	return out
}

// RecentSince counts records newer than the cutoff.
func (h *FailureHistory) RecentSince(cutoff time.Time) int {
	count := 0
	for _, rec := range h.Recent(h.Len()) {
		if rec.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// ForOperation returns up to n records for one operation id, newest
// first.
func (h *FailureHistory) ForOperation(operationID string, n int) []FailureRecord {
	var out []FailureRecord
	for _, rec := range h.Recent(h.Len()) {
		if rec.OperationID == operationID {
			out = append(out, rec)
			if len(out) == n {
				break
			}
		}
	}
	return out
}
