// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import "context"

// GenerationParams tunes a single backend generation call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ReasoningBackend is the contract for the service that produces and
// scores agent text. Prompt construction and model selection live in
// the implementation, not in the engine.
//
// Implementations must be safe for concurrent use: the engine calls
// GenerateThoughts for every agent in parallel.
type ReasoningBackend interface {
	// GenerateThoughts requests a bounded set of candidate thoughts
	// for one agent. Returned thoughts carry content, confidence and
	// type; the engine assigns ids, project and parent links.
	GenerateThoughts(ctx context.Context, prompt string, workCtx map[string]string, agent Agent) ([]*Thought, error)

	// EvaluateThought scores a thought in [0,1].
	EvaluateThought(ctx context.Context, th *Thought, workCtx map[string]string) (float64, error)
}

// Guard wraps a risky operation with circuit breaking, timeouts and
// recovery. Satisfied by the resilience executor; kept as a local
// interface so the engine can be tested with a pass-through guard.
type Guard interface {
	Execute(ctx context.Context, operationID string, op func(ctx context.Context) (any, error)) (any, error)
}

// PassThroughGuard runs operations directly with no protection.
// Useful in tests and degraded offline modes.
type PassThroughGuard struct{}

// Execute invokes op unchanged.
func (PassThroughGuard) Execute(ctx context.Context, _ string, op func(ctx context.Context) (any, error)) (any, error) {
	return op(ctx)
}

// Operation ids the engine registers with the resilience executor.
const (
	OpGenerateThoughts = "generateThoughts"
	OpExpandThoughts   = "expandThoughts"
	OpEvaluateThought  = "evaluateThought"
	OpSelectPath       = "selectPath"
)
