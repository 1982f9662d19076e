// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mindweave-ai/mindweave/pkg/logging"
	"github.com/mindweave-ai/mindweave/services/resilience"
)

// scriptedBackend returns fixed confidences per agent for generation
// and a fixed sequence for expansion calls.
type scriptedBackend struct {
	gen        map[string][]float64
	expansion  []float64
	failAgents map[string]bool
	evalErr    error

	mu          sync.Mutex
	expandCalls int
}

func (b *scriptedBackend) GenerateThoughts(ctx context.Context, prompt string, workCtx map[string]string, agent Agent) ([]*Thought, error) {
	if b.failAgents[agent.ID] {
		return nil, errors.New("scripted agent failure")
	}

	if strings.Contains(prompt, "Build on this reasoning step") {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.expandCalls >= len(b.expansion) {
			return nil, nil
		}
		conf := b.expansion[b.expandCalls]
		b.expandCalls++
		return []*Thought{{
			Content:    fmt.Sprintf("%s deepening %d", agent.ID, b.expandCalls),
			Confidence: conf,
		}}, nil
	}

	confs := b.gen[agent.ID]
	out := make([]*Thought, 0, len(confs))
	for i, conf := range confs {
		out = append(out, &Thought{
			Content:    fmt.Sprintf("%s idea %d", agent.ID, i+1),
			Confidence: conf,
		})
	}
	return out, nil
}

func (b *scriptedBackend) EvaluateThought(ctx context.Context, th *Thought, workCtx map[string]string) (float64, error) {
	if b.evalErr != nil {
		return 0, b.evalErr
	}
	return th.Confidence, nil
}

// waitFor polls cond until it holds or the test deadline budget runs
// out. Used for the background persistence path.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func threeAgents() []Agent {
	return []Agent{
		{ID: "agent-1", Role: RoleCoordinator},
		{ID: "agent-2", Role: RoleAnalyzer},
		{ID: "agent-3", Role: RoleResearcher},
	}
}

func TestRunWorkflowTreeShape(t *testing.T) {
	backend := &scriptedBackend{
		gen: map[string][]float64{
			"agent-1": {0.9, 0.8},
			"agent-2": {0.7, 0.6},
			"agent-3": {0.5, 0.4},
		},
		expansion: []float64{0.85},
	}
	engine := NewEngine(Config{MaxDepth: 2, FrontierSize: 1}, backend, PassThroughGuard{}, nil, logging.Nop())

	tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", threeAgents(), nil)

	// 6 generated + 1 expansion of the best leaf.
	if tree.Metrics.TotalThoughts != 7 {
		t.Fatalf("TotalThoughts = %d, want 7", tree.Metrics.TotalThoughts)
	}
	if tree.Metrics.MaxDepth != 2 {
		t.Fatalf("MaxDepth = %d, want 2", tree.Metrics.MaxDepth)
	}
	if tree.Metrics.SelectedPaths != 1 {
		t.Fatalf("SelectedPaths = %d, want 1", tree.Metrics.SelectedPaths)
	}

	selected := tree.SelectedBranches()
	if len(selected) != 1 {
		t.Fatalf("selected branches = %d, want 1", len(selected))
	}
	best := selected[0]
	if best.Depth() != 2 {
		t.Fatalf("best branch depth = %d, want 2", best.Depth())
	}

	head := tree.Thought(best.ThoughtIDs[0])
	leaf := tree.Thought(best.ThoughtIDs[1])
	if head == nil || head.Confidence != 0.9 {
		t.Fatalf("best branch head = %+v, want the 0.9 thought", head)
	}
	if leaf == nil || leaf.Confidence != 0.85 {
		t.Fatalf("best branch leaf = %+v, want the 0.85 expansion", leaf)
	}
	if leaf.ParentID != head.ID {
		t.Fatalf("expansion parent = %s, want %s", leaf.ParentID, head.ID)
	}

	// (1×0.9 + 0.8×0.85) / 1.8
	want := (0.9 + 0.8*0.85) / 1.8
	if !almostEqual(best.Score, want) {
		t.Fatalf("best branch score = %v, want %v", best.Score, want)
	}

	if tree.RootThought == nil || tree.RootThought.ID != head.ID {
		t.Fatalf("RootThought = %+v, want best branch head", tree.RootThought)
	}

	// Every selected branch must outscore every unselected one.
	for _, b := range tree.Branches {
		if !b.IsSelected && b.Score > best.Score {
			t.Fatalf("unselected branch score %v beats selected %v", b.Score, best.Score)
		}
	}

	// Structural validity: confidences in range, parents present.
	for _, th := range tree.Thoughts {
		if th.Confidence < 0 || th.Confidence > 1 {
			t.Fatalf("thought %s confidence %v out of range", th.ID, th.Confidence)
		}
		if th.ParentID != "" && tree.Thought(th.ParentID) == nil {
			t.Fatalf("thought %s references missing parent %s", th.ID, th.ParentID)
		}
	}
}

func TestRunWorkflowEmptyAgentsFallsBack(t *testing.T) {
	engine := NewEngine(Config{}, &scriptedBackend{}, PassThroughGuard{}, nil, logging.Nop())

	tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", nil, nil)

	if tree == nil || tree.RootThought == nil {
		t.Fatal("empty agent list must still yield a tree with a root")
	}
	if tree.RootThought.Type != TypeFallback {
		t.Fatalf("RootThought.Type = %s, want fallback", tree.RootThought.Type)
	}
}

func TestRunWorkflowDeterministic(t *testing.T) {
	newBackend := func() *scriptedBackend {
		return &scriptedBackend{
			gen: map[string][]float64{
				"agent-1": {0.9, 0.8},
				"agent-2": {0.7, 0.6},
				"agent-3": {0.5, 0.4},
			},
			expansion: []float64{0.85},
		}
	}
	cfg := Config{MaxDepth: 2, FrontierSize: 1}

	run := func() []string {
		engine := NewEngine(cfg, newBackend(), PassThroughGuard{}, nil, logging.Nop())
		tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", threeAgents(), nil)
		var contents []string
		for _, th := range tree.Thoughts {
			contents = append(contents, th.Content)
		}
		return contents
	}

	first := run()
	for i := 0; i < 5; i++ {
		again := run()
		if len(again) != len(first) {
			t.Fatalf("run %d: %d thoughts, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d diverged at %d: %q vs %q", i, j, again[j], first[j])
			}
		}
	}
}

func TestRunWorkflowPartialAgentFailure(t *testing.T) {
	backend := &scriptedBackend{
		gen: map[string][]float64{
			"agent-1": {0.9},
			"agent-2": {0.7},
			"agent-3": {0.5},
		},
		failAgents: map[string]bool{"agent-2": true},
	}
	engine := NewEngine(Config{MaxDepth: 1}, backend, PassThroughGuard{}, nil, logging.Nop())

	tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", threeAgents(), nil)

	if tree.Metrics.TotalThoughts != 2 {
		t.Fatalf("TotalThoughts = %d, want 2 (failed agent skipped)", tree.Metrics.TotalThoughts)
	}
	for _, th := range tree.Thoughts {
		if th.AgentID == "agent-2" {
			t.Fatalf("failed agent contributed thought %+v", th)
		}
	}
}

func TestRunWorkflowTotalFailureFallback(t *testing.T) {
	backend := &scriptedBackend{
		failAgents: map[string]bool{"agent-1": true, "agent-2": true, "agent-3": true},
	}
	engine := NewEngine(Config{}, backend, PassThroughGuard{}, nil, logging.Nop())

	tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", threeAgents(), nil)

	if tree.Metrics.TotalThoughts != 1 {
		t.Fatalf("TotalThoughts = %d, want 1", tree.Metrics.TotalThoughts)
	}
	if tree.RootThought == nil || tree.RootThought.Type != TypeFallback {
		t.Fatalf("RootThought = %+v, want fallback thought", tree.RootThought)
	}
	if tree.RootThought.Confidence != 0.1 {
		t.Fatalf("fallback confidence = %v, want 0.1", tree.RootThought.Confidence)
	}
	if len(tree.SelectedBranches()) != 1 {
		t.Fatalf("fallback tree must have one selected branch")
	}
}

func TestRunWorkflowCancellationKeepsPartialTree(t *testing.T) {
	backend := &scriptedBackend{
		gen:       map[string][]float64{"agent-1": {0.9, 0.8}},
		expansion: []float64{0.85, 0.85, 0.85},
	}
	engine := NewEngine(Config{MaxDepth: 4}, backend, PassThroughGuard{}, nil, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tree := engine.RunWorkflow(ctx, "proj-1", "prompt", threeAgents()[:1], nil)

	// Generation completed; cancellation stopped all expansion.
	if tree.Metrics.TotalThoughts != 2 {
		t.Fatalf("TotalThoughts = %d, want 2 (no expansion)", tree.Metrics.TotalThoughts)
	}
	if tree.Metrics.MaxDepth != 1 {
		t.Fatalf("MaxDepth = %d, want 1", tree.Metrics.MaxDepth)
	}
}

func TestRunWorkflowSingleAgentMode(t *testing.T) {
	backend := &scriptedBackend{
		gen: map[string][]float64{
			"agent-1": {0.9},
			"agent-2": {0.7},
			"agent-3": {0.5},
		},
	}
	engine := NewEngine(Config{MaxDepth: 1}, backend, PassThroughGuard{}, nil, logging.Nop())

	ctx := resilience.WithSingleAgent(context.Background())
	tree := engine.RunWorkflow(ctx, "proj-1", "prompt", threeAgents(), nil)

	for _, th := range tree.Thoughts {
		if th.AgentID != "agent-1" {
			t.Fatalf("single-agent mode used %s", th.AgentID)
		}
	}
	if tree.Metrics.TotalThoughts != 1 {
		t.Fatalf("TotalThoughts = %d, want 1", tree.Metrics.TotalThoughts)
	}
}

func TestRunWorkflowEvaluationFailureUsesConfidence(t *testing.T) {
	backend := &scriptedBackend{
		gen: map[string][]float64{
			"agent-1": {0.9},
			"agent-2": {0.7},
			"agent-3": {0.5},
		},
		evalErr: errors.New("scorer offline"),
	}
	engine := NewEngine(Config{MaxDepth: 1}, backend, PassThroughGuard{}, nil, logging.Nop())

	tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", threeAgents(), nil)

	best := tree.SelectedBranches()[0]
	head := tree.Thought(best.ThoughtIDs[0])
	if head.Confidence != 0.9 {
		t.Fatalf("best thought confidence = %v, want self-reported 0.9", head.Confidence)
	}
}

func TestRunWorkflowPublishesThoughts(t *testing.T) {
	backend := &scriptedBackend{
		gen: map[string][]float64{
			"agent-1": {0.9, 0.8},
			"agent-2": {0.7, 0.6},
			"agent-3": {0.5, 0.4},
		},
		expansion: []float64{0.85},
	}
	engine := NewEngine(Config{MaxDepth: 2, FrontierSize: 1}, backend, PassThroughGuard{}, nil, logging.Nop())

	var mu sync.Mutex
	var seen int
	engine.OnThought = func(th *Thought) {
		mu.Lock()
		seen++
		mu.Unlock()
	}

	tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", threeAgents(), nil)
	if seen != tree.Metrics.TotalThoughts {
		t.Fatalf("OnThought fired %d times, want %d", seen, tree.Metrics.TotalThoughts)
	}
}

func TestRunWorkflowPersistsThoughts(t *testing.T) {
	backend := &scriptedBackend{
		gen: map[string][]float64{"agent-1": {0.9}},
	}
	repo := NewMemoryRepository()
	engine := NewEngine(Config{MaxDepth: 1}, backend, PassThroughGuard{}, repo, logging.Nop())

	tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", threeAgents()[:1], nil)

	waitFor(t, func() bool {
		stored, err := repo.ThoughtsByProject(context.Background(), "proj-1")
		return err == nil && len(stored) == tree.Metrics.TotalThoughts
	})
	if repo.Inserted() != tree.Metrics.TotalThoughts {
		t.Fatalf("Inserted = %d, want %d", repo.Inserted(), tree.Metrics.TotalThoughts)
	}
}

func TestSelectPathJoinsBranchContent(t *testing.T) {
	backend := &scriptedBackend{
		gen:       map[string][]float64{"agent-1": {0.9}},
		expansion: []float64{0.8},
	}
	engine := NewEngine(Config{MaxDepth: 2, FrontierSize: 1}, backend, PassThroughGuard{}, nil, logging.Nop())
	tree := engine.RunWorkflow(context.Background(), "proj-1", "prompt", threeAgents()[:1], nil)

	best := tree.SelectedBranches()[0]
	resp, err := engine.SelectPath(context.Background(), tree, best)
	if err != nil {
		t.Fatalf("SelectPath: %v", err)
	}
	if resp.ProjectID != "proj-1" {
		t.Fatalf("ProjectID = %s", resp.ProjectID)
	}
	if !strings.Contains(resp.Content, "agent-1 idea 1") ||
		!strings.Contains(resp.Content, "agent-1 deepening 1") {
		t.Fatalf("Content = %q, missing branch thoughts", resp.Content)
	}
	if resp.Score != best.Score {
		t.Fatalf("Score = %v, want %v", resp.Score, best.Score)
	}
}

func TestSelectPathErrors(t *testing.T) {
	engine := NewEngine(Config{}, &scriptedBackend{}, PassThroughGuard{}, nil, logging.Nop())
	tree := &ThoughtTree{ProjectID: "proj-1"}

	if _, err := engine.SelectPath(context.Background(), tree, Branch{}); !errors.Is(err, ErrEmptyBranch) {
		t.Fatalf("got %v, want ErrEmptyBranch", err)
	}

	branch := Branch{ThoughtIDs: []string{"ghost"}}
	if _, err := engine.SelectPath(context.Background(), tree, branch); !errors.Is(err, ErrBranchNotInTree) {
		t.Fatalf("got %v, want ErrBranchNotInTree", err)
	}
}
