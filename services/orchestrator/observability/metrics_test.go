// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mindweave-ai/mindweave/pkg/logging"
	"github.com/mindweave-ai/mindweave/services/resilience"
)

func TestWorkflowCountersIncrement(t *testing.T) {
	m := NewWorkflowMetrics()

	m.WorkflowsTotal.WithLabelValues("success").Inc()
	m.WorkflowsTotal.WithLabelValues("success").Inc()
	m.WorkflowsTotal.WithLabelValues("fallback").Inc()

	if got := testutil.ToFloat64(m.WorkflowsTotal.WithLabelValues("success")); got != 2 {
		t.Fatalf("success counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.WorkflowsTotal.WithLabelValues("fallback")); got != 1 {
		t.Fatalf("fallback counter = %v, want 1", got)
	}
}

func TestThoughtCounterByType(t *testing.T) {
	m := NewWorkflowMetrics()

	m.ThoughtsGenerated.WithLabelValues("hypothesis").Add(3)
	m.ThoughtsGenerated.WithLabelValues("expansion").Add(2)

	if got := testutil.ToFloat64(m.ThoughtsGenerated.WithLabelValues("hypothesis")); got != 3 {
		t.Fatalf("hypothesis counter = %v, want 3", got)
	}
}

func TestResilienceCollectorExportsBreakerState(t *testing.T) {
	exec := resilience.NewExecutor(resilience.Config{
		Breaker:              resilience.BreakerConfig{FailureThreshold: 1, RecoveryWindow: time.Hour},
		DisableStrengthening: true,
	}, logging.Nop())
	defer exec.Close()
	exec.Registry().SetChain("op", nil)

	m := NewWorkflowMetrics()
	m.RegisterResilience(exec)

	// Trip the breaker so the collector has an open breaker to report.
	exec.Execute(context.Background(), "op", func(ctx context.Context) (any, error) {
		return nil, errors.New("down")
	})

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	byName := make(map[string]bool)
	for _, fam := range families {
		byName[fam.GetName()] = true
	}
	for _, want := range []string{
		"mindweave_resilience_breaker_state",
		"mindweave_resilience_breaker_failures",
		"mindweave_resilience_health_level",
		"mindweave_resilience_operation_success_rate",
	} {
		if !byName[want] {
			t.Fatalf("metric family %q missing from scrape", want)
		}
	}

	for _, fam := range families {
		if fam.GetName() != "mindweave_resilience_breaker_state" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if metric.GetGauge().GetValue() != 1 {
				t.Fatalf("breaker_state = %v, want 1 (open)", metric.GetGauge().GetValue())
			}
		}
	}
}
