// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the
// orchestrator.
//
// # Description
//
// Metrics cover the reasoning workflow surface (request counters,
// workflow duration, tree shape) and the resilience layer (breaker
// states, recovery outcomes, health level). Exposed via the /metrics
// endpoint for Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mindweave-ai/mindweave/services/resilience"
)

const metricsNamespace = "mindweave"

const workflowSubsystem = "workflow"

// WorkflowMetrics holds all Prometheus metrics for reasoning
// workflows.
type WorkflowMetrics struct {
	// WorkflowsTotal counts workflow runs by status.
	// Labels: status (success, fallback, error)
	WorkflowsTotal *prometheus.CounterVec

	// WorkflowDurationSeconds measures end-to-end workflow duration.
	WorkflowDurationSeconds prometheus.Histogram

	// ThoughtsGenerated counts thoughts added to trees by type.
	// Labels: type (hypothesis, expansion, fallback, ...)
	ThoughtsGenerated *prometheus.CounterVec

	// TreeDepth observes the maximum depth of finished trees.
	TreeDepth prometheus.Histogram

	// RecoveriesTotal counts recovery outcomes by strategy.
	// Labels: operation, strategy, outcome (success, failure)
	RecoveriesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewWorkflowMetrics creates and registers all workflow metrics on a
// fresh registry, along with the standard Go and process collectors.
func NewWorkflowMetrics() *WorkflowMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &WorkflowMetrics{
		registry: reg,

		WorkflowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "runs_total",
				Help:      "Total workflow runs by status",
			},
			[]string{"status"},
		),

		WorkflowDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "duration_seconds",
				Help:      "End-to-end workflow duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		ThoughtsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "thoughts_total",
				Help:      "Total thoughts added to trees by type",
			},
			[]string{"type"},
		),

		TreeDepth: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "tree_depth",
				Help:      "Maximum depth of finished thought trees",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),

		RecoveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "resilience",
				Name:      "recoveries_total",
				Help:      "Recovery attempts by operation, strategy, and outcome",
			},
			[]string{"operation", "strategy", "outcome"},
		),
	}
}

// Registry exposes the backing registry for the /metrics handler.
func (m *WorkflowMetrics) Registry() *prometheus.Registry { return m.registry }

// RegisterResilience attaches the live-state collector for an
// executor. Call once per executor.
func (m *WorkflowMetrics) RegisterResilience(exec *resilience.Executor) {
	m.registry.MustRegister(&resilienceCollector{exec: exec})
}

// =============================================================================
// Resilience Collector
// =============================================================================

var (
	breakerStateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "resilience", "breaker_state"),
		"Circuit breaker state per operation (0=closed, 1=open, 2=half-open)",
		[]string{"operation"}, nil,
	)
	breakerFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "resilience", "breaker_failures"),
		"Current failure count per breaker",
		[]string{"operation"}, nil,
	)
	healthLevelDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "resilience", "health_level"),
		"Aggregated health (0=healthy, 1=stressed, 2=degraded, 3=critical)",
		nil, nil,
	)
	successRateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "resilience", "operation_success_rate"),
		"Rolling success rate per operation",
		[]string{"operation"}, nil,
	)
)

// resilienceCollector reads executor snapshots at scrape time instead
// of mirroring state into gauges on every execution.
type resilienceCollector struct {
	exec *resilience.Executor
}

func (c *resilienceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- breakerStateDesc
	ch <- breakerFailuresDesc
	ch <- healthLevelDesc
	ch <- successRateDesc
}

func (c *resilienceCollector) Collect(ch chan<- prometheus.Metric) {
	for _, snap := range c.exec.BreakerSnapshots() {
		var state float64
		switch snap.State {
		case "open":
			state = 1
		case "half-open":
			state = 2
		}
		ch <- prometheus.MustNewConstMetric(breakerStateDesc,
			prometheus.GaugeValue, state, snap.OperationID)
		ch <- prometheus.MustNewConstMetric(breakerFailuresDesc,
			prometheus.GaugeValue, float64(snap.FailureCount), snap.OperationID)
	}

	for _, pm := range c.exec.AllMetrics() {
		ch <- prometheus.MustNewConstMetric(successRateDesc,
			prometheus.GaugeValue, pm.SuccessRate, pm.OperationID)
	}

	ch <- prometheus.MustNewConstMetric(healthLevelDesc,
		prometheus.GaugeValue, float64(c.exec.Health().Level))
}
