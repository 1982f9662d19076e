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
	"testing"
	"time"
)

func TestDefaultChainOrder(t *testing.T) {
	want := []StrategyKind{
		StrategyRetryBackoff,
		StrategySimplified,
		StrategyCachedResponse,
		StrategySingleAgent,
		StrategyGracefulDegradation,
		StrategyOfflineMode,
	}
	chain := DefaultChain()
	if len(chain) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(want))
	}
	for i, kind := range want {
		if chain[i].Kind != kind {
			t.Fatalf("chain[%d] = %v, want %v", i, chain[i].Kind, kind)
		}
	}
}

func TestChainInstalledOnFirstUse(t *testing.T) {
	r := NewRecoveryRegistry()
	chain := r.Chain("op")
	if len(chain) != len(DefaultChain()) {
		t.Fatalf("first Chain call returned %d strategies, want default chain", len(chain))
	}
	// Returned slice is a copy; mutating it must not affect the
	// registry.
	chain[0] = Strategy{Kind: StrategyOfflineMode}
	if got := r.Chain("op"); got[0].Kind != StrategyRetryBackoff {
		t.Fatalf("registry chain mutated through returned copy")
	}
}

func TestPromoteMovesToFront(t *testing.T) {
	r := NewRecoveryRegistry()
	r.Chain("op")
	r.Promote("op", 2)

	chain := r.Chain("op")
	if chain[0].Kind != StrategyCachedResponse {
		t.Fatalf("chain[0] = %v, want cached-response", chain[0].Kind)
	}
	// Relative order of the displaced strategies is preserved.
	if chain[1].Kind != StrategyRetryBackoff || chain[2].Kind != StrategySimplified {
		t.Fatalf("displaced order wrong: %v, %v", chain[1].Kind, chain[2].Kind)
	}
	if len(chain) != len(DefaultChain()) {
		t.Fatalf("chain length changed: %d", len(chain))
	}
}

func TestPrependDeduplicates(t *testing.T) {
	r := NewRecoveryRegistry()
	s := Strategy{Kind: StrategyRetryBackoff, Name: "mined-long-backoff", BaseDelay: 2 * time.Second}

	r.Prepend("op", s)
	r.Prepend("op", s)

	chain := r.Chain("op")
	if len(chain) != len(DefaultChain())+1 {
		t.Fatalf("chain length = %d, want default + 1", len(chain))
	}
	if chain[0].Name != "mined-long-backoff" {
		t.Fatalf("chain[0].Name = %q, want mined strategy at front", chain[0].Name)
	}
}

func TestApplyCachedResponse(t *testing.T) {
	r := NewRecoveryRegistry()
	op := func(ctx context.Context) (any, error) { return nil, errors.New("down") }

	_, err := r.apply(context.Background(), Strategy{Kind: StrategyCachedResponse}, "op", op)
	if !errors.Is(err, ErrNoCachedResponse) {
		t.Fatalf("apply without cache: got %v, want ErrNoCachedResponse", err)
	}

	r.StoreCached("op", "remembered")
	res, err := r.apply(context.Background(), Strategy{Kind: StrategyCachedResponse}, "op", op)
	if err != nil {
		t.Fatalf("apply with cache: %v", err)
	}
	if res != "remembered" {
		t.Fatalf("result = %v, want remembered", res)
	}
}

func TestApplyRetryBackoffHonorsCancellation(t *testing.T) {
	r := NewRecoveryRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("down")
	}
	_, err := r.apply(ctx, Strategy{Kind: StrategyRetryBackoff, MaxAttempts: 3, BaseDelay: time.Millisecond}, "op", op)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("operation invoked %d times after cancellation, want 0", calls)
	}
}

func TestApplyDegradationWithoutFallback(t *testing.T) {
	r := NewRecoveryRegistry()
	op := func(ctx context.Context) (any, error) { return nil, errors.New("down") }

	_, err := r.apply(context.Background(), Strategy{Kind: StrategyGracefulDegradation}, "op", op)
	if !errors.Is(err, ErrStrategyInapplicable) {
		t.Fatalf("got %v, want ErrStrategyInapplicable", err)
	}
}

func TestStrategyKindString(t *testing.T) {
	kinds := map[StrategyKind]string{
		StrategyRetryBackoff:        "retry-backoff",
		StrategySimplified:          "simplified-processing",
		StrategyCachedResponse:      "cached-response",
		StrategySingleAgent:         "single-agent-fallback",
		StrategyGracefulDegradation: "graceful-degradation",
		StrategyOfflineMode:         "offline-mode",
	}
	for kind, want := range kinds {
		if got := kind.String(); got != want {
			t.Fatalf("String(%d) = %q, want %q", kind, got, want)
		}
	}
}
