// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package thought implements the Tree-of-Thought reasoning engine.
//
// A workflow run fans a prompt out to a set of role-tagged agents,
// collects candidate reasoning steps (thoughts), expands the most
// promising ones for a bounded number of rounds, scores every
// root-to-leaf path, and assembles a ThoughtTree with the best paths
// marked as selected.
//
// Every external call (generation, evaluation) is issued through an
// injected resilience guard, so partial agent failures degrade the
// tree instead of failing the run.
package thought

import (
	"time"
)

// ThoughtType tags the role a thought plays in the reasoning tree.
type ThoughtType string

const (
	TypeHypothesis ThoughtType = "hypothesis"
	TypeCritique   ThoughtType = "critique"
	TypeSynthesis  ThoughtType = "synthesis"
	TypeExpansion  ThoughtType = "expansion"
	TypeFallback   ThoughtType = "fallback"
)

// AgentRole describes an agent's reasoning specialty.
type AgentRole string

const (
	RoleResearcher  AgentRole = "researcher"
	RoleCritic      AgentRole = "critic"
	RoleSynthesizer AgentRole = "synthesizer"
	RoleAnalyzer    AgentRole = "analyzer"
	RoleCoordinator AgentRole = "coordinator"
	RoleSpecialist  AgentRole = "specialist"
)

// AgentStatus is the observed lifecycle state of an agent.
type AgentStatus string

const (
	StatusIdle     AgentStatus = "idle"
	StatusThinking AgentStatus = "thinking"
	StatusWorking  AgentStatus = "working"
	StatusWaiting  AgentStatus = "waiting"
	StatusError    AgentStatus = "error"
	StatusOffline  AgentStatus = "offline"
)

// Agent is a read-only descriptor of a workflow participant.
//
// Agents are supplied by the caller; the engine uses them to tag
// generated thoughts and to let the reasoning backend shape prompts
// per role. The engine never mutates an Agent.
type Agent struct {
	ID           string      `json:"id"`
	Role         AgentRole   `json:"role"`
	Capabilities []string    `json:"capabilities,omitempty"`
	Status       AgentStatus `json:"status,omitempty"`
}

// Thought is one atomic reasoning step.
//
// Parent/child relationships are expressed as id references into the
// owning store (arena scheme), never as pointers, so a tree can be
// serialized and walked without ownership cycles.
type Thought struct {
	ID         string            `json:"id"`
	ProjectID  string            `json:"project_id"`
	AgentID    string            `json:"agent_id"`
	ParentID   string            `json:"parent_id,omitempty"`
	Content    string            `json:"content"`
	Confidence float64           `json:"confidence"`
	Type       ThoughtType       `json:"type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// IsRoot returns true if this thought has no parent.
func (t *Thought) IsRoot() bool {
	return t.ParentID == ""
}

// Branch is one complete root-to-leaf reasoning path.
//
// Branches are derived during assembly and never mutated afterwards;
// a new workflow run produces an entirely new set.
type Branch struct {
	ThoughtIDs []string `json:"thought_ids"`
	Score      float64  `json:"score"`
	IsSelected bool     `json:"is_selected"`
}

// Depth returns the number of thoughts on the branch.
func (b *Branch) Depth() int {
	return len(b.ThoughtIDs)
}

// Leaf returns the id of the deepest thought, or "" for an empty branch.
func (b *Branch) Leaf() string {
	if len(b.ThoughtIDs) == 0 {
		return ""
	}
	return b.ThoughtIDs[len(b.ThoughtIDs)-1]
}

// TreeMetrics summarizes the shape and quality of a finished tree.
type TreeMetrics struct {
	TotalThoughts     int     `json:"total_thoughts"`
	MaxDepth          int     `json:"max_depth"`
	AverageConfidence float64 `json:"average_confidence"`
	BranchingFactor   float64 `json:"branching_factor"`
	SelectedPaths     int     `json:"selected_paths"`
	ProcessingTimeMs  int64   `json:"processing_time_ms"`
}

// ThoughtTree is the result of one workflow run.
//
// A tree is created fresh per invocation and never updated in place;
// callers replace the old tree with the new one. Thoughts appear in
// creation order, and every non-root thought's parent is present in
// the same slice.
type ThoughtTree struct {
	ProjectID   string      `json:"project_id"`
	RootThought *Thought    `json:"root_thought"`
	Thoughts    []*Thought  `json:"thoughts"`
	Branches    []Branch    `json:"branches"`
	Depth       int         `json:"depth"`
	Metrics     TreeMetrics `json:"metrics"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Thought returns the thought with the given id, or nil.
func (tr *ThoughtTree) Thought(id string) *Thought {
	for _, th := range tr.Thoughts {
		if th.ID == id {
			return th
		}
	}
	return nil
}

// SelectedBranches returns the branches marked as selected, in order.
func (tr *ThoughtTree) SelectedBranches() []Branch {
	var out []Branch
	for _, b := range tr.Branches {
		if b.IsSelected {
			out = append(out, b)
		}
	}
	return out
}

// PathResponse is the synthesized answer for one chosen branch.
type PathResponse struct {
	ProjectID  string   `json:"project_id"`
	ThoughtIDs []string `json:"thought_ids"`
	Content    string   `json:"content"`
	Score      float64  `json:"score"`
}
