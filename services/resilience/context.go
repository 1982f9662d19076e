// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import "context"

// Recovery strategies communicate degraded execution modes to the
// wrapped operation through context values. Operations that can do
// cheaper work (smaller prompts, fewer agents) check these flags.

type ctxKey int

const (
	simplifiedKey ctxKey = iota
	singleAgentKey
)

// WithSimplified marks the context for reduced-complexity processing.
func WithSimplified(ctx context.Context) context.Context {
	return context.WithValue(ctx, simplifiedKey, true)
}

// IsSimplified reports whether reduced-complexity processing was
// requested by a recovery strategy.
func IsSimplified(ctx context.Context) bool {
	v, _ := ctx.Value(simplifiedKey).(bool)
	return v
}

// WithSingleAgent marks the context for single-agent fallback.
func WithSingleAgent(ctx context.Context) context.Context {
	return context.WithValue(ctx, singleAgentKey, true)
}

// IsSingleAgent reports whether single-agent fallback was requested.
func IsSingleAgent(ctx context.Context) bool {
	v, _ := ctx.Value(singleAgentKey).(bool)
	return v
}
