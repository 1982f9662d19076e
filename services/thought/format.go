// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import (
	"fmt"
	"strings"
)

// Format returns a human-readable rendering of the tree for CLI
// output.
func (tr *ThoughtTree) Format() string {
	if tr.RootThought == nil {
		return "Empty tree"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Project: %s\n", tr.ProjectID))
	sb.WriteString(fmt.Sprintf("Thoughts: %d, Max Depth: %d, Avg Confidence: %.2f\n",
		tr.Metrics.TotalThoughts, tr.Metrics.MaxDepth, tr.Metrics.AverageConfidence))
	sb.WriteString(fmt.Sprintf("Selected Paths: %d (%dms)\n\n",
		tr.Metrics.SelectedPaths, tr.Metrics.ProcessingTimeMs))

	selected := make(map[string]bool)
	for _, b := range tr.Branches {
		if b.IsSelected {
			for _, id := range b.ThoughtIDs {
				selected[id] = true
			}
		}
	}

	children := make(map[string][]*Thought)
	var roots []*Thought
	for _, th := range tr.Thoughts {
		if th.IsRoot() {
			roots = append(roots, th)
		} else {
			children[th.ParentID] = append(children[th.ParentID], th)
		}
	}

	for i, root := range roots {
		formatNode(&sb, root, children, selected, "", i == len(roots)-1)
	}
	return sb.String()
}

func formatNode(sb *strings.Builder, th *Thought, children map[string][]*Thought, selected map[string]bool, prefix string, isLast bool) {
	branch := "├── "
	if isLast {
		branch = "└── "
	}

	mark := ""
	if selected[th.ID] {
		mark = " ★"
	}

	sb.WriteString(fmt.Sprintf("%s%s[%s/%s] %s (conf: %.2f)%s\n",
		prefix, branch, th.AgentID, th.Type, truncate(th.Content, 60), th.Confidence, mark))

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}

	kids := children[th.ID]
	for i, kid := range kids {
		formatNode(sb, kid, children, selected, childPrefix, i == len(kids)-1)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
