// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// StressResult is the outcome of one synthetic stress scenario.
type StressResult struct {
	Scenario  string    `json:"scenario"`
	Survived  bool      `json:"survived"`
	Timestamp time.Time `json:"timestamp"`
}

// StressHistory is a bounded record of stress-test outcomes, kept for
// observability. Oldest entries are evicted once the cap is reached.
//
// Thread Safety: Safe for concurrent use.
type StressHistory struct {
	mu      sync.RWMutex
	cap     int
	results []StressResult
}

// NewStressHistory creates a history bounded to capacity entries.
func NewStressHistory(capacity int) *StressHistory {
	if capacity <= 0 {
		capacity = 32
	}
	return &StressHistory{cap: capacity}
}

// Append records one stress outcome, evicting the oldest if full.
func (h *StressHistory) Append(r StressResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) == h.cap {
		copy(h.results, h.results[1:])
		h.results = h.results[:h.cap-1]
	}
	h.results = append(h.results, r)
}

// Results returns a copy of all recorded outcomes, oldest first.
func (h *StressHistory) Results() []StressResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]StressResult, len(h.results))
	copy(out, h.results)
	return out
}

// StressResults exposes recorded stress outcomes for observability.
func (e *Executor) StressResults() []StressResult { return e.stress.Results() }

// maybeStrengthen kicks off a background strengthening pass for the
// operation when its rolling success rate or latency crosses the
// configured thresholds. At most one pass per operation runs at a
// time; the hot path never blocks on it.
func (e *Executor) maybeStrengthen(operationID string) {
	if e.cfg.DisableStrengthening || e.closed.Load() {
		return
	}
	pm, ok := e.metrics.Get(operationID)
	if !ok || pm.TotalExecutions < e.cfg.MinExecutionsForStrengthening {
		return
	}
	if pm.SuccessRate >= e.cfg.SuccessRateThreshold &&
		pm.AverageExecutionTime <= e.cfg.LatencyThreshold {
		return
	}

	e.strengtheningMu.Lock()
	if e.strengthening[operationID] {
		e.strengtheningMu.Unlock()
		return
	}
	e.strengthening[operationID] = true
	e.strengtheningMu.Unlock()

	go func() {
		defer func() {
			e.strengtheningMu.Lock()
			delete(e.strengthening, operationID)
			e.strengtheningMu.Unlock()
		}()
		e.strengthen(operationID, pm)
	}()
}

// strengthen is one full self-strengthening pass: mine the failure
// history for new strategies, then verify the recovery machinery
// against synthetic stress scenarios.
func (e *Executor) strengthen(operationID string, pm PerformanceMetrics) {
	e.log.Info("self-strengthening pass started",
		"operation_id", operationID,
		"success_rate", pm.SuccessRate,
		"avg_execution_time", pm.AverageExecutionTime,
	)

	for _, s := range e.mineStrategies(operationID) {
		e.registry.Prepend(operationID, s)
		e.log.Info("synthesized recovery strategy",
			"operation_id", operationID, "strategy", s.Label())
	}

	e.runStressScenarios(operationID)
}

// mineStrategies inspects recent failure records for the operation and
// synthesizes strategies matched to the dominant failure mode. Since
// the strategy space is a closed set, "synthesis" chooses an existing
// kind with tuned parameters.
func (e *Executor) mineStrategies(operationID string) []Strategy {
	records := e.history.ForOperation(operationID, 25)
	if len(records) == 0 {
		return nil
	}

	var timeouts, overloads int
	for _, rec := range records {
		msg := strings.ToLower(rec.Error)
		switch {
		case strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline"):
			timeouts++
		case rec.Snapshot.Goroutines > 500 || rec.Snapshot.OpenBreakers > 1:
			overloads++
		}
	}

	var out []Strategy
	half := len(records) / 2
	if timeouts > half {
		// Mostly timeouts: retrying the same call harder will not
		// help. Shrink the request instead.
		out = append(out, Strategy{
			Kind: StrategySimplified,
			Name: "mined-simplified-timeout",
		})
	}
	if overloads > half {
		// System-wide pressure: back off longer before retrying.
		out = append(out, Strategy{
			Kind:        StrategyRetryBackoff,
			Name:        "mined-long-backoff",
			MaxAttempts: 2,
			BaseDelay:   2 * time.Second,
		})
	}
	return out
}

// stressScenario is a synthetic workload for verifying recovery paths.
type stressScenario struct {
	name string
	op   Operation
}

// runStressScenarios drives the recovery chain through synthetic
// failure modes in an isolated sandbox executor so production breaker
// and metric state is untouched. Surviving a scenario means the chain
// produced some result despite the induced failure.
func (e *Executor) runStressScenarios(operationID string) {
	sandbox := NewExecutor(Config{
		Breaker:              e.cfg.Breaker,
		DefaultTimeout:       2 * time.Second,
		MinTimeout:           time.Second,
		HalfOpenTimeout:      time.Second,
		StrategyDelay:        10 * time.Millisecond,
		DisableStrengthening: true,
	}, e.log)
	sandbox.registry.SetChain(operationID, e.registry.Chain(operationID))
	// Seed a cached response so cache-based recovery has something
	// to serve, as it would after real successes.
	sandbox.registry.StoreCached(operationID, "stress-sandbox-result")

	scenarios := []stressScenario{
		{"agent-failure", func(ctx context.Context) (any, error) {
			return nil, errors.New("simulated agent failure")
		}},
		{"slow-operation", func(ctx context.Context) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}},
		{"intermittent", func() Operation {
			var calls int
			return func(ctx context.Context) (any, error) {
				calls++
				if calls%2 == 1 {
					return nil, errors.New("simulated intermittent failure")
				}
				return "recovered", nil
			}
		}()},
		{"total-outage", func(ctx context.Context) (any, error) {
			return nil, errors.New("simulated total outage")
		}},
	}

	for _, sc := range scenarios {
		if e.closed.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := sandbox.Execute(ctx, operationID, sc.op)
		cancel()

		survived := err == nil
		e.stress.Append(StressResult{
			Scenario:  sc.name,
			Survived:  survived,
			Timestamp: time.Now(),
		})
		if !survived {
			e.log.Warn("stress scenario not survived",
				"operation_id", operationID, "scenario", sc.name, "error", err)
		}
	}
}
