// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator wires the reasoning engine, the resilience
// executor, thought persistence, and the collaboration hub into one
// service with an HTTP and websocket surface.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mindweave-ai/mindweave/pkg/logging"
	"github.com/mindweave-ai/mindweave/services/collab"
	"github.com/mindweave-ai/mindweave/services/orchestrator/observability"
	"github.com/mindweave-ai/mindweave/services/resilience"
	"github.com/mindweave-ai/mindweave/services/thought"
)

// WorkflowRequest starts a Tree-of-Thought run.
type WorkflowRequest struct {
	ProjectID string            `json:"project_id" validate:"required"`
	Query     string            `json:"query" validate:"required,min=1"`
	Agents    []AgentSpec       `json:"agents" validate:"omitempty,max=16,dive"`
	Context   map[string]string `json:"context,omitempty"`
}

// AgentSpec names one workflow participant.
type AgentSpec struct {
	ID   string `json:"id" validate:"required"`
	Role string `json:"role" validate:"required,oneof=researcher critic synthesizer analyzer coordinator specialist"`
}

// SelectPathRequest asks for a synthesized answer from a finished
// tree's branch.
type SelectPathRequest struct {
	ProjectID   string `json:"project_id" validate:"required"`
	BranchIndex int    `json:"branch_index" validate:"gte=0"`
}

// HealthReport is the aggregated service health surface.
type HealthReport struct {
	Status    string                       `json:"status"`
	Health    resilience.HealthStatus      `json:"resilience"`
	Breakers  []resilience.BreakerSnapshot `json:"breakers,omitempty"`
	Observers int                          `json:"observers"`
}

// defaultAgents is the crew used when a request names none.
var defaultAgents = []thought.Agent{
	{ID: "coordinator-1", Role: thought.RoleCoordinator},
	{ID: "analyzer-1", Role: thought.RoleAnalyzer},
	{ID: "researcher-1", Role: thought.RoleResearcher},
}

// Orchestrator is the composition root of the service.
//
// Thread Safety: Safe for concurrent use. Finished trees are kept per
// project under the internal mutex; a new run replaces the old tree.
type Orchestrator struct {
	cfg       Config
	log       *logging.Logger
	exec      *resilience.Executor
	engine    *thought.Engine
	repo      thought.Repository
	repoClose func() error
	hub       *collab.Hub
	events    collab.Publisher
	metrics   *observability.WorkflowMetrics
	validate  *validator.Validate

	trees *treeCache
}

// New builds the orchestrator from configuration.
//
// The reasoning backend is OpenAI-compatible and requires an API key
// (OPENAI_API_KEY or the mounted secret); pass backend explicitly in
// tests.
func New(cfg Config, backend thought.ReasoningBackend, log *logging.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logging.Default()
	}

	if backend == nil {
		var err error
		backend, err = thought.NewOpenAIBackend(log)
		if err != nil {
			return nil, fmt.Errorf("initializing reasoning backend: %w", err)
		}
	}

	exec := resilience.NewExecutor(resilience.Config{
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			RecoveryWindow:   cfg.Resilience.RecoveryWindow,
		},
		DefaultTimeout:  cfg.Resilience.DefaultTimeout,
		HalfOpenTimeout: cfg.Resilience.HalfOpenTimeout,
	}, log)

	repo, repoClose, err := openRepository(cfg.Storage, log)
	if err != nil {
		exec.Close()
		return nil, err
	}

	engine := thought.NewEngine(thought.Config{
		ThoughtsPerAgent: cfg.Engine.ThoughtsPerAgent,
		MaxDepth:         cfg.Engine.MaxDepth,
		FrontierSize:     cfg.Engine.FrontierSize,
		TopK:             cfg.Engine.TopK,
		Scoring:          thought.ScoringConfig{DepthDecay: cfg.Engine.DepthDecay},
	}, backend, exec, repo, log)

	metrics := observability.NewWorkflowMetrics()
	metrics.RegisterResilience(exec)
	exec.SetRecoveryObserver(func(operationID, strategy, outcome string) {
		if strategy == "" {
			strategy = "none"
		}
		metrics.RecoveriesTotal.WithLabelValues(operationID, strategy, outcome).Inc()
	})

	hub := collab.NewHub(log)
	o := &Orchestrator{
		cfg:       cfg,
		log:       log,
		exec:      exec,
		engine:    engine,
		repo:      repo,
		repoClose: repoClose,
		hub:       hub,
		events:    hub,
		metrics:   metrics,
		validate:  validator.New(),
		trees:     newTreeCache(),
	}

	// Publish every thought as it lands so observers watch the tree
	// grow instead of waiting for the final result.
	engine.OnThought = func(th *thought.Thought) {
		o.metrics.ThoughtsGenerated.WithLabelValues(string(th.Type)).Inc()
		o.publish("thought_added", th.ProjectID, th)
	}

	// With generation fully down, a single degraded placeholder lets
	// the engine return its fallback tree instead of erroring out.
	exec.Registry().RegisterFallback(thought.OpGenerateThoughts, func(ctx context.Context) (any, error) {
		return []*thought.Thought(nil), nil
	})

	return o, nil
}

// openRepository picks the configured persistence backend.
func openRepository(cfg StorageConfig, log *logging.Logger) (thought.Repository, func() error, error) {
	if cfg.InMemory {
		return thought.NewMemoryRepository(), func() error { return nil }, nil
	}
	repo, err := thought.NewBadgerRepository(thought.BadgerConfig{Path: cfg.Path}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening thought store: %w", err)
	}
	return repo, repo.Close, nil
}

// RunWorkflow validates the request and executes a full reasoning run.
func (o *Orchestrator) RunWorkflow(ctx context.Context, req WorkflowRequest) (*thought.ThoughtTree, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid workflow request: %w", err)
	}

	agents := make([]thought.Agent, 0, len(req.Agents))
	for _, spec := range req.Agents {
		agents = append(agents, thought.Agent{ID: spec.ID, Role: thought.AgentRole(spec.Role)})
	}
	if len(agents) == 0 {
		agents = defaultAgents
	}

	o.publish("workflow_started", req.ProjectID, map[string]any{
		"query":  req.Query,
		"agents": agents,
	})

	started := time.Now()
	tree := o.engine.RunWorkflow(ctx, req.ProjectID, req.Query, agents, req.Context)
	o.trees.put(req.ProjectID, tree)

	status := "success"
	if tree.RootThought != nil && tree.RootThought.Type == thought.TypeFallback {
		status = "fallback"
	}
	o.metrics.WorkflowsTotal.WithLabelValues(status).Inc()
	o.metrics.WorkflowDurationSeconds.Observe(time.Since(started).Seconds())
	o.metrics.TreeDepth.Observe(float64(tree.Metrics.MaxDepth))

	o.publish("workflow_completed", req.ProjectID, tree)
	return tree, nil
}

// Tree returns the last finished tree for a project, or nil.
func (o *Orchestrator) Tree(projectID string) *thought.ThoughtTree {
	return o.trees.get(projectID)
}

// SelectPath synthesizes an answer from one branch of the project's
// last tree.
func (o *Orchestrator) SelectPath(ctx context.Context, req SelectPathRequest) (*thought.PathResponse, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid select request: %w", err)
	}
	tree := o.trees.get(req.ProjectID)
	if tree == nil {
		return nil, fmt.Errorf("project %s: %w", req.ProjectID, ErrNoTree)
	}
	if req.BranchIndex >= len(tree.Branches) {
		return nil, fmt.Errorf("branch %d of %d: %w", req.BranchIndex, len(tree.Branches), ErrBranchIndex)
	}

	resp, err := o.engine.SelectPath(ctx, tree, tree.Branches[req.BranchIndex])
	if err != nil {
		return nil, err
	}
	o.publish("path_selected", req.ProjectID, resp)
	return resp, nil
}

// History returns persisted thoughts for a project.
func (o *Orchestrator) History(ctx context.Context, projectID string) ([]*thought.Thought, error) {
	return o.repo.ThoughtsByProject(ctx, projectID)
}

// Health aggregates the service health.
func (o *Orchestrator) Health() HealthReport {
	hs := o.exec.Health()
	return HealthReport{
		Status:    hs.LevelName,
		Health:    hs,
		Breakers:  o.exec.BreakerSnapshots(),
		Observers: o.hub.Sessions(),
	}
}

// Hub exposes the collaboration hub for route wiring.
func (o *Orchestrator) Hub() *collab.Hub { return o.hub }

// Metrics exposes the metrics for route wiring.
func (o *Orchestrator) Metrics() *observability.WorkflowMetrics { return o.metrics }

// DisableEvents swaps the event publisher for a no-op. One-shot CLI
// runs use it: there is no websocket observer to broadcast to.
func (o *Orchestrator) DisableEvents() {
	o.events = collab.NopPublisher{}
}

// publish sends a workflow event to the collaboration surface.
func (o *Orchestrator) publish(eventType, projectID string, payload any) {
	env, err := collab.NewEnvelope(eventType, projectID, payload)
	if err != nil {
		o.log.Warn("failed to build event envelope", "type", eventType, "error", err)
		return
	}
	o.events.Publish(env)
}

// Close releases the executor and storage.
func (o *Orchestrator) Close() error {
	o.exec.Close()
	if o.repoClose != nil {
		return o.repoClose()
	}
	return nil
}
