// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("op", BreakerConfig{FailureThreshold: 5, RecoveryWindow: time.Minute})
	now := time.Now()

	for i := 0; i < 4; i++ {
		if got := cb.Decide(now); got != DecisionRun {
			t.Fatalf("decision after %d failures = %v, want DecisionRun", i, got)
		}
		cb.OnFailure(now)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state after 4 failures = %v, want closed", cb.State())
	}

	cb.OnFailure(now)
	if cb.State() != CircuitOpen {
		t.Fatalf("state after 5 failures = %v, want open", cb.State())
	}
	if got := cb.Decide(now); got != DecisionReject {
		t.Fatalf("decision while open = %v, want DecisionReject", got)
	}
}

func TestBreakerGradualHealing(t *testing.T) {
	cb := NewCircuitBreaker("op", BreakerConfig{FailureThreshold: 5, RecoveryWindow: time.Minute})
	now := time.Now()

	// Alternate failure/success: the count never reaches the
	// threshold because each success heals one failure.
	for i := 0; i < 10; i++ {
		cb.OnFailure(now)
		cb.OnSuccess()
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	// Two failures per success still trends upward and opens.
	for i := 0; i < 10; i++ {
		cb.OnFailure(now)
		cb.OnFailure(now)
		cb.OnSuccess()
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	cb := NewCircuitBreaker("op", BreakerConfig{FailureThreshold: 1, RecoveryWindow: time.Minute})
	start := time.Now()
	cb.OnFailure(start)

	if got := cb.Decide(start.Add(30 * time.Second)); got != DecisionReject {
		t.Fatalf("decision inside recovery window = %v, want DecisionReject", got)
	}

	after := start.Add(61 * time.Second)
	if got := cb.Decide(after); got != DecisionTrial {
		t.Fatalf("decision after recovery window = %v, want DecisionTrial", got)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	// Only one trial slot; a concurrent caller is rejected.
	if got := cb.Decide(after); got != DecisionReject {
		t.Fatalf("second decision during trial = %v, want DecisionReject", got)
	}
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker("op", BreakerConfig{FailureThreshold: 1, RecoveryWindow: time.Minute})
	start := time.Now()
	cb.OnFailure(start)
	cb.Decide(start.Add(2 * time.Minute))

	cb.OnSuccess()
	if cb.State() != CircuitClosed {
		t.Fatalf("state after trial success = %v, want closed", cb.State())
	}
	if snap := cb.Snapshot(); snap.FailureCount != 0 {
		t.Fatalf("failure count after close = %d, want 0", snap.FailureCount)
	}
	if got := cb.Decide(time.Now()); got != DecisionRun {
		t.Fatalf("decision after close = %v, want DecisionRun", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("op", BreakerConfig{FailureThreshold: 1, RecoveryWindow: time.Minute})
	start := time.Now()
	cb.OnFailure(start)

	trialAt := start.Add(2 * time.Minute)
	cb.Decide(trialAt)
	cb.OnFailure(trialAt)

	if cb.State() != CircuitOpen {
		t.Fatalf("state after trial failure = %v, want open", cb.State())
	}
	// The window restarts from the trial failure.
	if got := cb.Decide(trialAt.Add(30 * time.Second)); got != DecisionReject {
		t.Fatalf("decision inside restarted window = %v, want DecisionReject", got)
	}
	if got := cb.Decide(trialAt.Add(2 * time.Minute)); got != DecisionTrial {
		t.Fatalf("decision after restarted window = %v, want DecisionTrial", got)
	}
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("op", BreakerConfig{FailureThreshold: 1, RecoveryWindow: time.Minute})
	cb.OnFailure(time.Now())
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Fatalf("state after reset = %v, want closed", cb.State())
	}
	if got := cb.Decide(time.Now()); got != DecisionRun {
		t.Fatalf("decision after reset = %v, want DecisionRun", got)
	}
}

func TestBankSharesBreakersByOperation(t *testing.T) {
	bank := NewBreakerBank(DefaultBreakerConfig())
	a := bank.Get("generateThoughts")
	b := bank.Get("generateThoughts")
	if a != b {
		t.Fatal("same operation id should share one breaker")
	}
	c := bank.Get("evaluateThought")
	if a == c {
		t.Fatal("distinct operation ids should have distinct breakers")
	}

	now := time.Now()
	for i := 0; i < 5; i++ {
		a.OnFailure(now)
	}
	if got := bank.OpenCount(); got != 1 {
		t.Fatalf("OpenCount = %d, want 1", got)
	}
	bank.Reset()
	if got := bank.OpenCount(); got != 0 {
		t.Fatalf("OpenCount after reset = %d, want 0", got)
	}
}
