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
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// CircuitClosed is normal operation - requests pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures - requests are rejected.
	CircuitOpen
	// CircuitHalfOpen is testing recovery - one trial request allowed.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is consecutive-ish failures before opening.
	// Successes heal the count gradually rather than resetting it.
	// Default: 5.
	FailureThreshold int

	// RecoveryWindow is how long to stay open before allowing a
	// half-open trial. Default: 60s.
	RecoveryWindow time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryWindow:   60 * time.Second,
	}
}

// BreakerSnapshot is a read-only copy of breaker state.
type BreakerSnapshot struct {
	OperationID     string    `json:"operation_id"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	LastTestTime    time.Time `json:"last_test_time,omitempty"`
}

// CircuitBreaker guards one operation kind.
//
// State machine:
//
//	CLOSED ──[failureCount ≥ threshold]──► OPEN
//	OPEN ──[recovery window elapsed]──► HALF_OPEN (one trial)
//	HALF_OPEN ──[success]──► CLOSED   HALF_OPEN ──[failure]──► OPEN
//
// In CLOSED, a success decrements failureCount toward zero instead of
// resetting it, so a flaky dependency opens the breaker even when
// failures are interleaved with successes.
//
// Thread Safety: Safe for concurrent use. Only the resilience
// executor mutates a breaker; callers read snapshots.
type CircuitBreaker struct {
	operationID string
	config      BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastTestTime    time.Time
	trialInFlight   bool
}

// NewCircuitBreaker creates a breaker for one operation kind.
func NewCircuitBreaker(operationID string, config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.RecoveryWindow <= 0 {
		config.RecoveryWindow = DefaultBreakerConfig().RecoveryWindow
	}
	return &CircuitBreaker{
		operationID: operationID,
		config:      config,
		state:       CircuitClosed,
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Decision is the breaker's answer for one call attempt.
type Decision int

const (
	// DecisionRun allows a normal execution.
	DecisionRun Decision = iota
	// DecisionTrial allows exactly one half-open trial execution.
	DecisionTrial
	// DecisionReject skips the operation entirely; the caller goes
	// straight to the recovery chain.
	DecisionReject
)

// Decide evaluates whether this attempt may run.
//
// On DecisionTrial the caller owns the trial slot and must report the
// outcome via OnSuccess or OnFailure; concurrent callers during the
// trial are rejected.
func (cb *CircuitBreaker) Decide(now time.Time) Decision {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return DecisionRun

	case CircuitOpen:
		if now.Sub(cb.lastFailureTime) >= cb.config.RecoveryWindow {
			cb.state = CircuitHalfOpen
			cb.trialInFlight = true
			cb.lastTestTime = now
			return DecisionTrial
		}
		return DecisionReject

	case CircuitHalfOpen:
		if cb.trialInFlight {
			return DecisionReject
		}
		cb.trialInFlight = true
		cb.lastTestTime = now
		return DecisionTrial
	}

	return DecisionReject
}

// OnSuccess records a successful execution.
func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++

	switch cb.state {
	case CircuitClosed:
		// Gradual healing
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	case CircuitHalfOpen:
		cb.trialInFlight = false
		cb.failureCount = 0
		cb.state = CircuitClosed
	}
}

// OnFailure records a failed execution.
func (cb *CircuitBreaker) OnFailure(now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = now

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.trialInFlight = false
		cb.state = CircuitOpen
	}
}

// Snapshot returns a read-only copy of the breaker state.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		OperationID:     cb.operationID,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		LastTestTime:    cb.lastTestTime,
	}
}

// Reset returns the breaker to closed state with cleared counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.trialInFlight = false
}
