// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collab

import "sync"

// sendQueue is a bounded FIFO of envelopes awaiting replay. When full,
// the oldest entry is dropped so the queue holds the most recent
// window of messages.
//
// Thread Safety: Safe for concurrent use.
type sendQueue struct {
	mu       sync.Mutex
	items    []Envelope
	capacity int
	dropped  int
}

func newSendQueue(capacity int) *sendQueue {
	if capacity <= 0 {
		capacity = 100
	}
	return &sendQueue{capacity: capacity}
}

// enqueue appends an envelope, evicting the oldest when full.
func (q *sendQueue) enqueue(env Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == q.capacity {
		copy(q.items, q.items[1:])
		q.items = q.items[:q.capacity-1]
		q.dropped++
	}
	q.items = append(q.items, env)
}

// drain removes and returns all queued envelopes in FIFO order.
func (q *sendQueue) drain() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// requeueFront puts undelivered envelopes back at the head, preserving
// their original order ahead of anything queued since.
func (q *sendQueue) requeueFront(envs []Envelope) {
	if len(envs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := append(append([]Envelope{}, envs...), q.items...)
	if len(merged) > q.capacity {
		q.dropped += len(merged) - q.capacity
		merged = merged[len(merged)-q.capacity:]
	}
	q.items = merged
}

// length returns the number of queued envelopes.
func (q *sendQueue) length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// droppedCount returns how many envelopes have been evicted.
func (q *sendQueue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
