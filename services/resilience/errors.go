// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the resilience package.
var (
	// ErrCircuitOpen is returned when the breaker rejects a call
	// without attempting the underlying operation.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTimeout is returned when an operation exceeds its adaptive
	// timeout. Treated as a failure for breaker and metric purposes.
	ErrTimeout = errors.New("operation timed out")

	// ErrNoCachedResponse is returned by the cached-response strategy
	// when no prior success is available.
	ErrNoCachedResponse = errors.New("no cached response available")

	// ErrStrategyInapplicable is returned by a strategy that cannot
	// run for the current operation.
	ErrStrategyInapplicable = errors.New("recovery strategy not applicable")
)

// ExhaustedError signals that every recovery strategy failed. The
// original operation error is preserved as the cause.
type ExhaustedError struct {
	OperationID string
	Attempted   int
	Cause       error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation %q: all %d recovery strategies exhausted: %v",
		e.OperationID, e.Attempted, e.Cause)
}

// Unwrap exposes the original cause for errors.Is/As.
func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// timeoutError carries the timeout that was exceeded.
type timeoutError struct {
	operationID string
	limit       time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %s", e.operationID, e.limit)
}

func (e *timeoutError) Unwrap() error { return ErrTimeout }
