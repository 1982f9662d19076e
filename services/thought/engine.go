// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindweave-ai/mindweave/pkg/logging"
	"github.com/mindweave-ai/mindweave/services/resilience"
)

// Config tunes engine behavior.
type Config struct {
	// ThoughtsPerAgent caps candidate thoughts kept per generation
	// call. Default: 3.
	ThoughtsPerAgent int

	// MaxDepth is the maximum branch length. Expansion runs for
	// MaxDepth-1 rounds at most. Default: 3.
	MaxDepth int

	// FrontierSize is how many top-scoring leaves each expansion
	// round builds on. Default: 2.
	FrontierSize int

	// TopK is how many branches are marked selected. Default: 1.
	TopK int

	// Scoring tunes thought and branch scoring.
	Scoring ScoringConfig

	// FallbackConfidence is the confidence of the synthetic thought
	// produced when every agent fails. Default: 0.1.
	FallbackConfidence float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ThoughtsPerAgent:   3,
		MaxDepth:           3,
		FrontierSize:       2,
		TopK:               1,
		Scoring:            DefaultScoringConfig(),
		FallbackConfidence: 0.1,
	}
}

// normalized fills zero values with defaults.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.ThoughtsPerAgent <= 0 {
		c.ThoughtsPerAgent = d.ThoughtsPerAgent
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.FrontierSize <= 0 {
		c.FrontierSize = d.FrontierSize
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.Scoring.DepthDecay == 0 {
		c.Scoring = d.Scoring
	}
	if c.FallbackConfidence <= 0 {
		c.FallbackConfidence = d.FallbackConfidence
	}
	return c
}

// Engine runs Tree-of-Thought workflows.
//
// The engine holds no per-run mutable state: every RunWorkflow call
// builds its own Store, so concurrent runs for different projects are
// independent. All backend calls go through the injected Guard.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	cfg     Config
	backend ReasoningBackend
	guard   Guard
	repo    Repository
	log     *logging.Logger

	// OnThought, when set, is invoked for every thought added to a
	// tree (generation and expansion). Used by the orchestrator to
	// publish progress. Must be safe for concurrent use.
	OnThought func(th *Thought)
}

// NewEngine creates a workflow engine.
//
// Inputs:
//   - cfg: Engine configuration; zero values take defaults.
//   - backend: The reasoning backend. Required.
//   - guard: Resilience guard for external calls. Pass
//     PassThroughGuard{} to run unguarded.
//   - repo: Optional persistence; may be nil.
//   - log: Logger; nil falls back to logging.Default().
func NewEngine(cfg Config, backend ReasoningBackend, guard Guard, repo Repository, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default()
	}
	if guard == nil {
		guard = PassThroughGuard{}
	}
	return &Engine{
		cfg:     cfg.normalized(),
		backend: backend,
		guard:   guard,
		repo:    repo,
		log:     log,
	}
}

// RunWorkflow executes the full Tree-of-Thought pipeline.
//
// The returned tree is always structurally valid: partial agent
// failures degrade it, total failure yields a single low-confidence
// fallback thought, and cancellation stops further expansion while
// keeping whatever was assembled.
func (e *Engine) RunWorkflow(ctx context.Context, projectID, prompt string, agents []Agent, workCtx map[string]string) *ThoughtTree {
	started := time.Now()
	log := e.log.With("project_id", projectID)

	if resilience.IsSingleAgent(ctx) && len(agents) > 1 {
		log.Warn("single-agent fallback active, using first agent only", "agent_id", agents[0].ID)
		agents = agents[:1]
	}

	store := NewStore()
	scores := make(map[string]float64)

	// 1. Generation
	generated := e.generate(ctx, store, projectID, prompt, agents, workCtx)
	if store.Len() == 0 {
		log.Warn("all agents failed to generate, returning fallback tree",
			"agents", len(agents), "elapsed_ms", time.Since(started).Milliseconds())
		return e.fallbackTree(projectID, started)
	}
	e.evaluate(ctx, generated, scores, workCtx)

	// 2. Expansion
	for round := 1; round < e.cfg.MaxDepth; round++ {
		if ctx.Err() != nil {
			log.Warn("workflow cancelled, keeping partial tree", "round", round)
			break
		}
		added := e.expandRound(ctx, store, scores, projectID, prompt, agents, workCtx)
		if len(added) == 0 {
			break
		}
		e.evaluate(ctx, added, scores, workCtx)
	}

	// 3-5. Selection and assembly
	tree := e.assemble(store, scores, projectID, started)

	e.persist(tree)
	log.Info("workflow complete",
		"thoughts", tree.Metrics.TotalThoughts,
		"max_depth", tree.Metrics.MaxDepth,
		"selected_paths", tree.Metrics.SelectedPaths,
		"elapsed_ms", tree.Metrics.ProcessingTimeMs,
	)
	return tree
}

// generate fans the prompt out to every agent concurrently and adds
// surviving candidates to the store in stable agent order.
func (e *Engine) generate(ctx context.Context, store *Store, projectID, prompt string, agents []Agent, workCtx map[string]string) []*Thought {
	results := make([][]*Thought, len(agents))

	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func(i int, agent Agent) {
			defer wg.Done()
			res, err := e.guard.Execute(ctx, OpGenerateThoughts, func(ctx context.Context) (any, error) {
				return e.backend.GenerateThoughts(ctx, prompt, workCtx, agent)
			})
			if err != nil {
				e.log.Warn("agent generation failed, continuing without it",
					"agent_id", agent.ID, "role", agent.Role, "error", err)
				return
			}
			thoughts, ok := res.([]*Thought)
			if !ok {
				e.log.Error("backend returned unexpected type", "agent_id", agent.ID)
				return
			}
			results[i] = thoughts
		}(i, agent)
	}
	wg.Wait()

	// Sequential insertion keeps creation order deterministic per
	// agent even though the calls ran in parallel.
	var added []*Thought
	for i, agent := range agents {
		candidates := results[i]
		if len(candidates) > e.cfg.ThoughtsPerAgent {
			candidates = candidates[:e.cfg.ThoughtsPerAgent]
		}
		for _, th := range candidates {
			th = e.adopt(th, projectID, agent.ID, "")
			if err := store.Add(th); err != nil {
				e.log.Warn("dropping invalid thought", "agent_id", agent.ID, "error", err)
				continue
			}
			added = append(added, th)
			if e.OnThought != nil {
				e.OnThought(th)
			}
		}
	}
	return added
}

// expandRound expands the current top-scoring frontier leaves and
// returns the thoughts it added.
func (e *Engine) expandRound(ctx context.Context, store *Store, scores map[string]float64, projectID, prompt string, agents []Agent, workCtx map[string]string) []*Thought {
	frontier := e.frontier(store, scores)
	if len(frontier) == 0 {
		return nil
	}

	results := make([][]*Thought, len(frontier))
	var wg sync.WaitGroup
	for i, parent := range frontier {
		wg.Add(1)
		go func(i int, parent *Thought) {
			defer wg.Done()
			agent := agentFor(agents, parent.AgentID)
			followUp := fmt.Sprintf("%s\n\nBuild on this reasoning step and take it further:\n%s", prompt, parent.Content)
			res, err := e.guard.Execute(ctx, OpExpandThoughts, func(ctx context.Context) (any, error) {
				return e.backend.GenerateThoughts(ctx, followUp, workCtx, agent)
			})
			if err != nil {
				e.log.Warn("expansion failed for frontier thought",
					"thought_id", parent.ID, "error", err)
				return
			}
			if thoughts, ok := res.([]*Thought); ok {
				results[i] = thoughts
			}
		}(i, parent)
	}
	wg.Wait()

	var added []*Thought
	for i, parent := range frontier {
		candidates := results[i]
		if len(candidates) > e.cfg.ThoughtsPerAgent {
			candidates = candidates[:e.cfg.ThoughtsPerAgent]
		}
		for _, th := range candidates {
			th = e.adopt(th, projectID, parent.AgentID, parent.ID)
			if th.Type == "" {
				th.Type = TypeExpansion
			}
			if err := store.Add(th); err != nil {
				e.log.Warn("dropping invalid expansion thought", "parent_id", parent.ID, "error", err)
				continue
			}
			added = append(added, th)
			if e.OnThought != nil {
				e.OnThought(th)
			}
		}
	}
	return added
}

// frontier picks the top-scoring leaves, ties broken by creation
// order for determinism.
func (e *Engine) frontier(store *Store, scores map[string]float64) []*Thought {
	leaves := store.Leaves()
	sort.SliceStable(leaves, func(i, j int) bool {
		si, sj := scores[leaves[i].ID], scores[leaves[j].ID]
		if si != sj {
			return si > sj
		}
		return store.CreationIndex(leaves[i].ID) < store.CreationIndex(leaves[j].ID)
	})
	if len(leaves) > e.cfg.FrontierSize {
		leaves = leaves[:e.cfg.FrontierSize]
	}
	return leaves
}

// evaluate scores each thought through the guard, falling back to the
// thought's own confidence (then the default) when evaluation fails.
func (e *Engine) evaluate(ctx context.Context, thoughts []*Thought, scores map[string]float64, workCtx map[string]string) {
	for _, th := range thoughts {
		res, err := e.guard.Execute(ctx, OpEvaluateThought, func(ctx context.Context) (any, error) {
			return e.backend.EvaluateThought(ctx, th, workCtx)
		})
		var score float64
		if err == nil {
			if f, ok := res.(float64); ok {
				score = clamp01(f)
			}
		} else {
			score = th.Confidence
			if score <= 0 {
				score = e.cfg.Scoring.DefaultScore
			}
			e.log.Debug("evaluation failed, using self-reported confidence",
				"thought_id", th.ID, "score", score, "error", err)
		}
		scores[th.ID] = e.cfg.Scoring.finalScore(score, th, workCtx)
	}
}

// assemble builds every root-to-leaf branch, selects the top K, and
// computes tree metrics.
func (e *Engine) assemble(store *Store, scores map[string]float64, projectID string, started time.Time) *ThoughtTree {
	thoughts := store.All()

	var branches []Branch
	for _, leaf := range store.Leaves() {
		ids := store.PathFromRoot(leaf.ID)
		branches = append(branches, Branch{
			ThoughtIDs: ids,
			Score:      e.cfg.Scoring.branchScore(ids, scores),
		})
	}

	sort.SliceStable(branches, func(i, j int) bool {
		if branches[i].Score != branches[j].Score {
			return branches[i].Score > branches[j].Score
		}
		return store.CreationIndex(branches[i].Leaf()) < store.CreationIndex(branches[j].Leaf())
	})
	selected := e.cfg.TopK
	if selected > len(branches) {
		selected = len(branches)
	}
	for i := 0; i < selected; i++ {
		branches[i].IsSelected = true
	}

	tree := &ThoughtTree{
		ProjectID: projectID,
		Thoughts:  thoughts,
		Branches:  branches,
		CreatedAt: started,
	}

	// Root: head of the best selected branch, or the best-scoring
	// thought overall when no branch exists.
	if len(branches) > 0 && len(branches[0].ThoughtIDs) > 0 {
		tree.RootThought = store.Get(branches[0].ThoughtIDs[0])
	}
	if tree.RootThought == nil {
		var best *Thought
		for _, th := range thoughts {
			if best == nil || scores[th.ID] > scores[best.ID] {
				best = th
			}
		}
		tree.RootThought = best
	}

	tree.Metrics = computeMetrics(thoughts, branches, store, started)
	tree.Depth = tree.Metrics.MaxDepth
	return tree
}

// computeMetrics derives the summary metrics for a finished tree.
func computeMetrics(thoughts []*Thought, branches []Branch, store *Store, started time.Time) TreeMetrics {
	m := TreeMetrics{
		TotalThoughts:    len(thoughts),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}

	var confSum float64
	for _, th := range thoughts {
		confSum += th.Confidence
	}
	if len(thoughts) > 0 {
		m.AverageConfidence = confSum / float64(len(thoughts))
	}

	for _, b := range branches {
		if b.Depth() > m.MaxDepth {
			m.MaxDepth = b.Depth()
		}
		if b.IsSelected {
			m.SelectedPaths++
		}
	}

	// Branching factor: mean child count over internal nodes.
	var internal, childTotal int
	for _, th := range thoughts {
		if kids := len(store.Children(th.ID)); kids > 0 {
			internal++
			childTotal += kids
		}
	}
	if internal > 0 {
		m.BranchingFactor = float64(childTotal) / float64(internal)
	}
	return m
}

// fallbackTree builds the minimal degraded tree returned when no
// agent produced anything usable.
func (e *Engine) fallbackTree(projectID string, started time.Time) *ThoughtTree {
	th := &Thought{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		AgentID:    "system",
		Content:    "Unable to generate reasoning steps; all agents failed. Try again or simplify the prompt.",
		Confidence: e.cfg.FallbackConfidence,
		Type:       TypeFallback,
		CreatedAt:  time.Now(),
	}
	branch := Branch{
		ThoughtIDs: []string{th.ID},
		Score:      e.cfg.FallbackConfidence,
		IsSelected: true,
	}
	return &ThoughtTree{
		ProjectID:   projectID,
		RootThought: th,
		Thoughts:    []*Thought{th},
		Branches:    []Branch{branch},
		Depth:       1,
		Metrics: TreeMetrics{
			TotalThoughts:     1,
			MaxDepth:          1,
			AverageConfidence: e.cfg.FallbackConfidence,
			SelectedPaths:     1,
			ProcessingTimeMs:  time.Since(started).Milliseconds(),
		},
		CreatedAt: started,
	}
}

// SelectPath synthesizes a response for one branch of a tree.
//
// Outputs:
//   - *PathResponse: Joined content of the branch's thoughts.
//   - error: ErrEmptyBranch or ErrBranchNotInTree for invalid input.
func (e *Engine) SelectPath(ctx context.Context, tree *ThoughtTree, branch Branch) (*PathResponse, error) {
	if len(branch.ThoughtIDs) == 0 {
		return nil, ErrEmptyBranch
	}

	res, err := e.guard.Execute(ctx, OpSelectPath, func(ctx context.Context) (any, error) {
		var parts []string
		for _, id := range branch.ThoughtIDs {
			th := tree.Thought(id)
			if th == nil {
				return nil, fmt.Errorf("thought %s: %w", id, ErrBranchNotInTree)
			}
			parts = append(parts, th.Content)
		}
		return &PathResponse{
			ProjectID:  tree.ProjectID,
			ThoughtIDs: branch.ThoughtIDs,
			Content:    strings.Join(parts, "\n\n"),
			Score:      branch.Score,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*PathResponse), nil
}

// adopt fills in the engine-owned fields of a backend-produced thought.
func (e *Engine) adopt(th *Thought, projectID, agentID, parentID string) *Thought {
	if th.ID == "" {
		th.ID = uuid.New().String()
	}
	th.ProjectID = projectID
	if th.AgentID == "" {
		th.AgentID = agentID
	}
	th.ParentID = parentID
	th.Confidence = clamp01(th.Confidence)
	if th.CreatedAt.IsZero() {
		th.CreatedAt = time.Now()
	}
	if th.Type == "" {
		th.Type = TypeHypothesis
	}
	return th
}

// persist writes the tree's thoughts through the repository in the
// background. Persistence failures never abort a workflow.
func (e *Engine) persist(tree *ThoughtTree) {
	if e.repo == nil {
		return
	}
	thoughts := tree.Thoughts
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, th := range thoughts {
			if err := e.repo.InsertThought(ctx, th); err != nil {
				e.log.Warn("failed to persist thought", "thought_id", th.ID, "error", err)
			}
		}
	}()
}

// agentFor finds the agent with the given id, falling back to the
// first agent so expansion still works after agent churn.
func agentFor(agents []Agent, id string) Agent {
	for _, a := range agents {
		if a.ID == id {
			return a
		}
	}
	if len(agents) > 0 {
		return agents[0]
	}
	return Agent{ID: id, Role: RoleResearcher}
}
