// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resilience implements the antifragile execution layer.
//
// Every risky operation runs through Executor.Execute under a named
// operation id. The executor adds, in order: circuit breaking,
// adaptive timeouts, per-operation performance metrics, an ordered
// recovery-strategy chain, and a background self-strengthening loop
// that mines failure history for new strategies.
//
// The breaker bank, metrics store, registry and failure history are
// explicit owned state constructed with the executor - there are no
// package-level singletons.
package resilience

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mindweave-ai/mindweave/pkg/logging"
)

// Operation is an arbitrary asynchronous unit of work. Kept as an
// alias so the executor satisfies the callers' local guard interfaces
// directly.
type Operation = func(ctx context.Context) (any, error)

// Config tunes the executor.
type Config struct {
	// Breaker configures new circuit breakers.
	Breaker BreakerConfig

	// DefaultTimeout bounds operations with no execution history.
	// Default: 45s.
	DefaultTimeout time.Duration

	// MinTimeout is the floor for the adaptive timeout. Default: 5s.
	MinTimeout time.Duration

	// HalfOpenTimeout bounds the single half-open trial execution.
	// Default: 30s.
	HalfOpenTimeout time.Duration

	// TimeoutMultiplier scales the historical average execution time
	// into a timeout. Default: 2.0.
	TimeoutMultiplier float64

	// HistoryCapacity bounds the failure-record ring buffer.
	// Default: 100.
	HistoryCapacity int

	// StrategyDelay is the pause between recovery-strategy attempts.
	// Default: 100ms.
	StrategyDelay time.Duration

	// SuccessRateThreshold triggers self-strengthening when an
	// operation's rolling success rate drops below it. Default: 0.8.
	SuccessRateThreshold float64

	// LatencyThreshold triggers self-strengthening when average
	// latency exceeds it. Default: 5s.
	LatencyThreshold time.Duration

	// MinExecutionsForStrengthening avoids reacting to tiny samples.
	// Default: 10.
	MinExecutionsForStrengthening int64

	// DisableStrengthening turns the background loop off (tests).
	DisableStrengthening bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Breaker:                       DefaultBreakerConfig(),
		DefaultTimeout:                45 * time.Second,
		MinTimeout:                    5 * time.Second,
		HalfOpenTimeout:               30 * time.Second,
		TimeoutMultiplier:             2.0,
		HistoryCapacity:               100,
		StrategyDelay:                 100 * time.Millisecond,
		SuccessRateThreshold:          0.8,
		LatencyThreshold:              5 * time.Second,
		MinExecutionsForStrengthening: 10,
	}
}

// normalized fills zero values with defaults.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.MinTimeout <= 0 {
		c.MinTimeout = d.MinTimeout
	}
	if c.HalfOpenTimeout <= 0 {
		c.HalfOpenTimeout = d.HalfOpenTimeout
	}
	if c.TimeoutMultiplier <= 0 {
		c.TimeoutMultiplier = d.TimeoutMultiplier
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = d.HistoryCapacity
	}
	if c.StrategyDelay <= 0 {
		c.StrategyDelay = d.StrategyDelay
	}
	if c.SuccessRateThreshold <= 0 {
		c.SuccessRateThreshold = d.SuccessRateThreshold
	}
	if c.LatencyThreshold <= 0 {
		c.LatencyThreshold = d.LatencyThreshold
	}
	if c.MinExecutionsForStrengthening <= 0 {
		c.MinExecutionsForStrengthening = d.MinExecutionsForStrengthening
	}
	return c
}

// HealthLevel is the aggregated health of the execution layer.
type HealthLevel int

const (
	Healthy HealthLevel = iota
	Stressed
	Degraded
	Critical
)

// String returns a human-readable level name.
func (h HealthLevel) String() string {
	switch h {
	case Healthy:
		return "HEALTHY"
	case Stressed:
		return "STRESSED"
	case Degraded:
		return "DEGRADED"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// HealthStatus is the read-only health view exposed to callers.
type HealthStatus struct {
	Level          HealthLevel `json:"-"`
	LevelName      string      `json:"level"`
	OpenBreakers   int         `json:"open_breakers"`
	RecentFailures int         `json:"recent_failures"`
	Goroutines     int         `json:"goroutines"`
}

// Executor wraps operations with the full antifragile stack.
//
// Thread Safety: Safe for concurrent use. Breaker mutation for a
// single operation id is serialized; distinct ids never block each
// other.
type Executor struct {
	cfg      Config
	bank     *BreakerBank
	registry *RecoveryRegistry
	metrics  *MetricsStore
	history  *FailureHistory
	log      *logging.Logger

	critical        atomic.Bool
	strengtheningMu sync.Mutex
	strengthening   map[string]bool
	stress          *StressHistory
	closed          atomic.Bool

	// onRecovery, when set, observes every recovery chain outcome.
	// Set before the first Execute; not synchronized.
	onRecovery func(operationID, strategy, outcome string)
}

// NewExecutor creates an executor with freshly owned state.
func NewExecutor(cfg Config, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.Default()
	}
	cfg = cfg.normalized()
	return &Executor{
		cfg:             cfg,
		bank:            NewBreakerBank(cfg.Breaker),
		registry:        NewRecoveryRegistry(),
		metrics:         NewMetricsStore(),
		history:         NewFailureHistory(cfg.HistoryCapacity),
		log:             log,
		strengthening:   make(map[string]bool),
		stress:          NewStressHistory(32),
	}
}

// Registry exposes the recovery registry for fallback registration.
func (e *Executor) Registry() *RecoveryRegistry { return e.registry }

// SetRecoveryObserver installs a callback invoked after every recovery
// chain run with the operation id, the winning strategy label (empty
// when the chain exhausted), and the outcome ("recovered" or
// "exhausted"). Install before the first Execute; not synchronized.
func (e *Executor) SetRecoveryObserver(fn func(operationID, strategy, outcome string)) {
	e.onRecovery = fn
}

func (e *Executor) notifyRecovery(operationID, strategy, outcome string) {
	if e.onRecovery != nil {
		e.onRecovery(operationID, strategy, outcome)
	}
}

// Metrics returns performance metrics for one operation.
func (e *Executor) Metrics(operationID string) (PerformanceMetrics, bool) {
	return e.metrics.Get(operationID)
}

// AllMetrics returns performance metrics for every known operation.
func (e *Executor) AllMetrics() []PerformanceMetrics { return e.metrics.All() }

// BreakerSnapshots returns read-only breaker state for observability.
func (e *Executor) BreakerSnapshots() []BreakerSnapshot { return e.bank.Snapshots() }

// RecentFailures returns up to n failure records, newest first.
func (e *Executor) RecentFailures(n int) []FailureRecord { return e.history.Recent(n) }

// Execute runs op under the full antifragile stack.
//
// Inputs:
//   - ctx: Caller context; cancellation propagates into op.
//   - operationID: Stable operation kind, e.g. "generateThoughts".
//   - op: The unit of work.
//
// Outputs:
//   - any: The operation's (possibly recovered) result.
//   - error: *ExhaustedError when every recovery strategy failed;
//     the original error is its cause.
func (e *Executor) Execute(ctx context.Context, operationID string, op Operation) (any, error) {
	breaker := e.bank.Get(operationID)
	now := time.Now()

	switch breaker.Decide(now) {
	case DecisionRun:
		return e.attempt(ctx, operationID, breaker, op, e.adaptiveTimeout(operationID))

	case DecisionTrial:
		e.log.Info("half-open trial", "operation_id", operationID)
		return e.attempt(ctx, operationID, breaker, op, e.cfg.HalfOpenTimeout)

	default: // DecisionReject
		e.log.Warn("circuit open, skipping operation", "operation_id", operationID)
		return e.recover(ctx, operationID, op, ErrCircuitOpen)
	}
}

// attempt runs the operation once under a timeout and routes the
// outcome to the breaker, metrics, history, and recovery chain.
func (e *Executor) attempt(ctx context.Context, operationID string, breaker *CircuitBreaker, op Operation, limit time.Duration) (any, error) {
	started := time.Now()
	res, err := runWithTimeout(ctx, operationID, op, limit)
	elapsed := time.Since(started)

	e.metrics.Record(operationID, elapsed, err == nil)

	if err == nil {
		breaker.OnSuccess()
		e.registry.StoreCached(operationID, res)
		e.maybeStrengthen(operationID)
		return res, nil
	}

	breaker.OnFailure(time.Now())
	e.recordFailure(operationID, err, elapsed, false, "", 0)
	e.maybeStrengthen(operationID)
	return e.recover(ctx, operationID, op, err)
}

// recover walks the operation's recovery chain in priority order. The
// first strategy to succeed is promoted to the front of the chain.
//
// When the breaker rejected the call outright, strategies that would
// re-invoke the suppressed operation are skipped; only cache-backed
// and degradation strategies may serve.
func (e *Executor) recover(ctx context.Context, operationID string, op Operation, cause error) (any, error) {
	chain := e.registry.Chain(operationID)
	recoveryStart := time.Now()
	suppressed := errors.Is(cause, ErrCircuitOpen)

	attempted := 0
	for i, strategy := range chain {
		if suppressed && strategy.invokesOperation() {
			e.log.Debug("circuit open, skipping operation-invoking strategy",
				"operation_id", operationID, "strategy", strategy.Label())
			continue
		}
		if attempted > 0 {
			if err := sleepCtx(ctx, e.cfg.StrategyDelay); err != nil {
				break
			}
		}
		attempted++
		res, err := e.registry.apply(ctx, strategy, operationID, op)
		if err == nil {
			e.registry.Promote(operationID, i)
			e.recordFailure(operationID, cause, 0, true, strategy.Label(),
				time.Since(recoveryStart).Milliseconds())
			e.log.Info("recovery strategy succeeded",
				"operation_id", operationID, "strategy", strategy.Label(), "position", i)
			e.notifyRecovery(operationID, strategy.Label(), "recovered")
			return res, nil
		}
		e.log.Debug("recovery strategy failed",
			"operation_id", operationID, "strategy", strategy.Label(), "error", err)
	}

	e.recordFailure(operationID, cause, 0, true, "", time.Since(recoveryStart).Milliseconds())
	e.notifyRecovery(operationID, "", "exhausted")
	return nil, &ExhaustedError{
		OperationID: operationID,
		Attempted:   attempted,
		Cause:       cause,
	}
}

// adaptiveTimeout computes max(minTimeout, avg × multiplier), falling
// back to the fixed default with no history.
func (e *Executor) adaptiveTimeout(operationID string) time.Duration {
	pm, ok := e.metrics.Get(operationID)
	if !ok || pm.AverageExecutionTime == 0 {
		return e.cfg.DefaultTimeout
	}
	t := time.Duration(float64(pm.AverageExecutionTime) * e.cfg.TimeoutMultiplier)
	if t < e.cfg.MinTimeout {
		t = e.cfg.MinTimeout
	}
	return t
}

// recordFailure appends to the bounded history with a system snapshot.
func (e *Executor) recordFailure(operationID string, err error, elapsed time.Duration, recovered bool, strategy string, recoveryMs int64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	e.history.Append(FailureRecord{
		OperationID:     operationID,
		Error:           err.Error(),
		ExecutionTimeMs: elapsed.Milliseconds(),
		Snapshot: SystemSnapshot{
			Goroutines:   runtime.NumGoroutine(),
			HeapBytes:    ms.HeapAlloc,
			OpenBreakers: e.bank.OpenCount(),
		},
		RecoveryAttempted:  recovered,
		RecoveryStrategy:   strategy,
		RecoveryDurationMs: recoveryMs,
	})
}

// EscalateCritical forces the aggregated health to CRITICAL. Used for
// fatal, unexpected errors; cleared by Reset.
func (e *Executor) EscalateCritical(reason string) {
	e.critical.Store(true)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	e.log.Error("health escalated to CRITICAL",
		"reason", reason,
		"goroutines", runtime.NumGoroutine(),
		"heap_bytes", ms.HeapAlloc,
		"open_breakers", e.bank.OpenCount(),
	)
}

// Health aggregates breaker and failure state into a single level.
// The result is read-only; callers cannot override it.
func (e *Executor) Health() HealthStatus {
	open := e.bank.OpenCount()
	recent := e.history.RecentSince(time.Now().Add(-time.Minute))

	level := Healthy
	switch {
	case e.critical.Load() || open >= 3:
		level = Critical
	case open >= 2 || recent >= 20:
		level = Degraded
	case open == 1 || recent >= 5:
		level = Stressed
	}

	return HealthStatus{
		Level:          level,
		LevelName:      level.String(),
		OpenBreakers:   open,
		RecentFailures: recent,
		Goroutines:     runtime.NumGoroutine(),
	}
}

// Reset closes all breakers and clears the critical escalation.
func (e *Executor) Reset() {
	e.bank.Reset()
	e.critical.Store(false)
}

// Close tears the executor down. In-flight operations finish; new
// strengthening work is not started.
func (e *Executor) Close() {
	e.closed.Store(true)
}

// runWithTimeout executes op with a deadline, treating overruns as
// failures. The operation receives the deadline through its context.
func runWithTimeout(ctx context.Context, operationID string, op Operation, limit time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type outcome struct {
		res any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := op(ctx)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &timeoutError{operationID: operationID, limit: limit}
		}
		return nil, ctx.Err()
	}
}
