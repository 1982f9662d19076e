// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import (
	"math"
	"strings"
)

// ScoringConfig tunes thought and branch scoring.
//
// The depth discount is deliberately exposed rather than hard-coded:
// different deployments weight deep chains differently.
type ScoringConfig struct {
	// DepthDecay is the per-level weight multiplier for branch
	// scoring. A thought at depth d contributes with weight
	// DepthDecay^d, so deeper nodes count less and the longest chain
	// does not automatically win. Must be in (0,1]. Default: 0.8.
	DepthDecay float64

	// ContextBonusCap bounds the additive context-relevance nudge so
	// the final thought score stays in [0,1]. Default: 0.1.
	ContextBonusCap float64

	// DefaultScore is used when evaluation fails and the thought has
	// no self-reported confidence. Default: 0.5.
	DefaultScore float64
}

// DefaultScoringConfig returns sensible defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		DepthDecay:      0.8,
		ContextBonusCap: 0.1,
		DefaultScore:    0.5,
	}
}

// clamp01 clamps v into [0,1].
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// contextRelevance measures token overlap between a thought's content
// and the supplied working context, as a ratio in [0,1].
//
// This is a cheap lexical signal, not semantic similarity; it only
// nudges scores, bounded by ContextBonusCap.
func contextRelevance(content string, workCtx map[string]string) float64 {
	if len(workCtx) == 0 || content == "" {
		return 0
	}

	ctxTokens := make(map[string]struct{})
	for _, v := range workCtx {
		for _, tok := range tokenize(v) {
			ctxTokens[tok] = struct{}{}
		}
	}
	if len(ctxTokens) == 0 {
		return 0
	}

	toks := tokenize(content)
	if len(toks) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range toks {
		if _, ok := ctxTokens[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(toks))
}

// tokenize lower-cases and splits on non-letter/digit runes, dropping
// short stop-ish tokens.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

// finalScore combines an evaluation score with the bounded context
// nudge, clamped to [0,1].
func (c ScoringConfig) finalScore(evalScore float64, th *Thought, workCtx map[string]string) float64 {
	bonus := contextRelevance(th.Content, workCtx) * c.ContextBonusCap
	if bonus > c.ContextBonusCap {
		bonus = c.ContextBonusCap
	}
	return clamp01(evalScore + bonus)
}

// branchScore aggregates per-thought scores along a root-to-leaf path
// with a descending depth weighting:
//
//	score = Σ (decay^i × s_i) / Σ decay^i
//
// The normalization keeps the result in [0,1] regardless of branch
// length, so a short strong branch can beat a long weak one.
func (c ScoringConfig) branchScore(ids []string, scores map[string]float64) float64 {
	if len(ids) == 0 {
		return 0
	}
	decay := c.DepthDecay
	if decay <= 0 || decay > 1 {
		decay = 0.8
	}

	var weighted, norm float64
	w := 1.0
	for _, id := range ids {
		weighted += w * scores[id]
		norm += w
		w *= decay
	}
	if norm == 0 {
		return 0
	}
	return weighted / norm
}
