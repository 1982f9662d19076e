// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StrategyKind is the closed set of recovery strategy kinds.
//
// Dispatch is by kind, not by name: names only label synthesized
// variants for observability.
type StrategyKind int

const (
	// StrategyRetryBackoff re-invokes the operation with exponential
	// backoff between attempts.
	StrategyRetryBackoff StrategyKind = iota

	// StrategySimplified re-invokes the operation once with the
	// reduced-complexity context flag set.
	StrategySimplified

	// StrategyCachedResponse returns the operation's last successful
	// result, if one is cached.
	StrategyCachedResponse

	// StrategySingleAgent re-invokes once with the single-agent
	// fallback flag set.
	StrategySingleAgent

	// StrategyGracefulDegradation returns a caller-registered
	// degraded result for the operation.
	StrategyGracefulDegradation

	// StrategyOfflineMode serves only from cache and marks the
	// attempt as offline; it never touches the network.
	StrategyOfflineMode
)

// String returns a human-readable kind name.
func (k StrategyKind) String() string {
	switch k {
	case StrategyRetryBackoff:
		return "retry-backoff"
	case StrategySimplified:
		return "simplified-processing"
	case StrategyCachedResponse:
		return "cached-response"
	case StrategySingleAgent:
		return "single-agent-fallback"
	case StrategyGracefulDegradation:
		return "graceful-degradation"
	case StrategyOfflineMode:
		return "offline-mode"
	default:
		return "unknown"
	}
}

// Strategy is one entry in an operation's recovery chain.
type Strategy struct {
	Kind StrategyKind `json:"kind"`

	// Name distinguishes synthesized variants; empty for built-ins.
	Name string `json:"name,omitempty"`

	// MaxAttempts bounds retry strategies. Default: 3.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// BaseDelay seeds exponential backoff. Default: 200ms.
	BaseDelay time.Duration `json:"base_delay,omitempty"`
}

// Label returns the strategy's display name.
func (s Strategy) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind.String()
}

// invokesOperation reports whether applying the strategy calls the
// wrapped operation. An open breaker may only run strategies that
// serve from cache or a registered fallback.
func (s Strategy) invokesOperation() bool {
	switch s.Kind {
	case StrategyRetryBackoff, StrategySimplified, StrategySingleAgent:
		return true
	default:
		return false
	}
}

// DefaultChain is the recovery chain installed for operations with no
// specific registration.
func DefaultChain() []Strategy {
	return []Strategy{
		{Kind: StrategyRetryBackoff, MaxAttempts: 3, BaseDelay: 200 * time.Millisecond},
		{Kind: StrategySimplified},
		{Kind: StrategyCachedResponse},
		{Kind: StrategySingleAgent},
		{Kind: StrategyGracefulDegradation},
		{Kind: StrategyOfflineMode},
	}
}

// FallbackFunc produces a degraded result for an operation when the
// graceful-degradation strategy runs.
type FallbackFunc func(ctx context.Context) (any, error)

// RecoveryRegistry holds, per operation kind, an ordered recovery
// chain plus optional degraded fallbacks and cached responses.
//
// The registry is owned by one executor; chains reorder over time as
// strategies succeed (promotion) and as mined strategies are
// prepended.
//
// Thread Safety: Safe for concurrent use.
type RecoveryRegistry struct {
	mu        sync.RWMutex
	chains    map[string][]Strategy
	fallbacks map[string]FallbackFunc
	cache     map[string]any
}

// NewRecoveryRegistry creates an empty registry.
func NewRecoveryRegistry() *RecoveryRegistry {
	return &RecoveryRegistry{
		chains:    make(map[string][]Strategy),
		fallbacks: make(map[string]FallbackFunc),
		cache:     make(map[string]any),
	}
}

// Chain returns a copy of the operation's chain, installing the
// default chain on first use.
func (r *RecoveryRegistry) Chain(operationID string) []Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain, ok := r.chains[operationID]
	if !ok {
		chain = DefaultChain()
		r.chains[operationID] = chain
	}
	out := make([]Strategy, len(chain))
	copy(out, chain)
	return out
}

// SetChain replaces the operation's chain.
func (r *RecoveryRegistry) SetChain(operationID string, chain []Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Strategy, len(chain))
	copy(cp, chain)
	r.chains[operationID] = cp
}

// Promote moves the strategy at index to the front of the chain, so
// the last strategy that worked is tried first next time.
func (r *RecoveryRegistry) Promote(operationID string, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chains[operationID]
	if index <= 0 || index >= len(chain) {
		return
	}
	s := chain[index]
	copy(chain[1:index+1], chain[:index])
	chain[0] = s
}

// Prepend inserts a strategy at the front of the chain. Used by the
// self-strengthening loop for synthesized strategies.
func (r *RecoveryRegistry) Prepend(operationID string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chains[operationID]
	if chain == nil {
		chain = DefaultChain()
	}
	// Avoid stacking duplicates of the same synthesized strategy.
	for _, existing := range chain {
		if existing.Kind == s.Kind && existing.Name == s.Name {
			return
		}
	}
	r.chains[operationID] = append([]Strategy{s}, chain...)
}

// RegisterFallback installs the degraded result producer for an
// operation.
func (r *RecoveryRegistry) RegisterFallback(operationID string, fn FallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[operationID] = fn
}

// fallback returns the registered fallback, if any.
func (r *RecoveryRegistry) fallback(operationID string) (FallbackFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fallbacks[operationID]
	return fn, ok
}

// StoreCached remembers an operation's last successful result.
func (r *RecoveryRegistry) StoreCached(operationID string, result any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[operationID] = result
}

// cached returns the last successful result, if any.
func (r *RecoveryRegistry) cached(operationID string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.cache[operationID]
	return v, ok
}

// apply executes one strategy against the operation.
//
// Outputs:
//   - any: The recovered result when err is nil.
//   - error: ErrStrategyInapplicable / ErrNoCachedResponse when the
//     strategy cannot serve, or the operation's own error.
func (r *RecoveryRegistry) apply(ctx context.Context, s Strategy, operationID string, op Operation) (any, error) {
	switch s.Kind {
	case StrategyRetryBackoff:
		attempts := s.MaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		delay := s.BaseDelay
		if delay <= 0 {
			delay = 200 * time.Millisecond
		}
		var lastErr error
		for i := 0; i < attempts; i++ {
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			res, err := op(ctx)
			if err == nil {
				return res, nil
			}
			lastErr = err
			delay *= 2
		}
		return nil, lastErr

	case StrategySimplified:
		return op(WithSimplified(ctx))

	case StrategySingleAgent:
		return op(WithSingleAgent(ctx))

	case StrategyCachedResponse, StrategyOfflineMode:
		if v, ok := r.cached(operationID); ok {
			return v, nil
		}
		return nil, fmt.Errorf("operation %q: %w", operationID, ErrNoCachedResponse)

	case StrategyGracefulDegradation:
		if fn, ok := r.fallback(operationID); ok {
			return fn(ctx)
		}
		return nil, fmt.Errorf("operation %q: %w", operationID, ErrStrategyInapplicable)

	default:
		return nil, fmt.Errorf("strategy kind %d: %w", s.Kind, ErrStrategyInapplicable)
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
