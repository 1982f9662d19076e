// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"runtime"
	"sync"
	"time"
)

// PerformanceMetrics tracks execution statistics for one operation.
type PerformanceMetrics struct {
	OperationID          string        `json:"operation_id"`
	TotalExecutions      int64         `json:"total_executions"`
	SuccessfulExecutions int64         `json:"successful_executions"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	PeakMemory           uint64        `json:"peak_memory"`
	SuccessRate          float64       `json:"success_rate"`
}

// MetricsStore holds per-operation performance metrics.
//
// Like the breaker bank, the store is owned by one executor and torn
// down with it. Only the executor writes; observers read snapshots.
//
// Thread Safety: Safe for concurrent use.
type MetricsStore struct {
	mu      sync.RWMutex
	metrics map[string]*PerformanceMetrics
}

// NewMetricsStore creates an empty metrics store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{metrics: make(map[string]*PerformanceMetrics)}
}

// Record updates metrics for one execution attempt.
//
// The average execution time is an exponential moving average so
// recent behavior dominates without keeping per-call history.
func (m *MetricsStore) Record(operationID string, elapsed time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pm, ok := m.metrics[operationID]
	if !ok {
		pm = &PerformanceMetrics{OperationID: operationID}
		m.metrics[operationID] = pm
	}

	pm.TotalExecutions++
	if success {
		pm.SuccessfulExecutions++
	}
	if pm.AverageExecutionTime == 0 {
		pm.AverageExecutionTime = elapsed
	} else {
		// EMA with alpha 0.2
		pm.AverageExecutionTime = time.Duration(
			0.8*float64(pm.AverageExecutionTime) + 0.2*float64(elapsed))
	}
	pm.SuccessRate = float64(pm.SuccessfulExecutions) / float64(pm.TotalExecutions)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > pm.PeakMemory {
		pm.PeakMemory = ms.HeapAlloc
	}
}

// Get returns a copy of one operation's metrics and whether it exists.
func (m *MetricsStore) Get(operationID string) (PerformanceMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pm, ok := m.metrics[operationID]
	if !ok {
		return PerformanceMetrics{OperationID: operationID}, false
	}
	return *pm, true
}

// All returns copies of every operation's metrics.
func (m *MetricsStore) All() []PerformanceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PerformanceMetrics, 0, len(m.metrics))
	for _, pm := range m.metrics {
		out = append(out, *pm)
	}
	return out
}
