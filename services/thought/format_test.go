// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import (
	"strings"
	"testing"
)

func TestFormatEmptyTree(t *testing.T) {
	tree := &ThoughtTree{ProjectID: "proj-1"}
	if got := tree.Format(); got != "Empty tree" {
		t.Fatalf("Format() = %q", got)
	}
}

func TestFormatRendersTreeStructure(t *testing.T) {
	root := &Thought{ID: "r", AgentID: "agent-1", Content: "root idea", Confidence: 0.9, Type: TypeHypothesis}
	child := &Thought{ID: "c", ParentID: "r", AgentID: "agent-1", Content: "deeper idea", Confidence: 0.85, Type: TypeExpansion}
	other := &Thought{ID: "o", AgentID: "agent-2", Content: "side idea", Confidence: 0.4, Type: TypeHypothesis}

	tree := &ThoughtTree{
		ProjectID:   "proj-1",
		RootThought: root,
		Thoughts:    []*Thought{root, child, other},
		Branches: []Branch{
			{ThoughtIDs: []string{"r", "c"}, Score: 0.87, IsSelected: true},
			{ThoughtIDs: []string{"o"}, Score: 0.4},
		},
		Metrics: TreeMetrics{TotalThoughts: 3, MaxDepth: 2, AverageConfidence: 0.71, SelectedPaths: 1},
	}

	out := tree.Format()

	if !strings.Contains(out, "Project: proj-1") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "├── ") || !strings.Contains(out, "└── ") {
		t.Fatalf("missing tree connectors:\n%s", out)
	}
	if !strings.Contains(out, "root idea (conf: 0.90) ★") {
		t.Fatalf("selected root not starred:\n%s", out)
	}
	if !strings.Contains(out, "deeper idea (conf: 0.85) ★") {
		t.Fatalf("selected child not starred:\n%s", out)
	}
	if strings.Contains(out, "side idea (conf: 0.40) ★") {
		t.Fatalf("unselected thought starred:\n%s", out)
	}
}

func TestFormatTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("x", 100)
	tree := &ThoughtTree{
		ProjectID:   "proj-1",
		RootThought: &Thought{ID: "r", AgentID: "a", Content: long, Confidence: 0.5},
		Thoughts:    []*Thought{{ID: "r", AgentID: "a", Content: long, Confidence: 0.5}},
	}

	out := tree.Format()
	if strings.Contains(out, long) {
		t.Fatalf("long content not truncated:\n%s", out)
	}
	if !strings.Contains(out, "...") {
		t.Fatalf("truncation marker missing:\n%s", out)
	}
}
