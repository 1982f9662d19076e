// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thought

import "errors"

// Sentinel errors for the thought package.
var (
	// Store errors
	ErrDuplicateThought = errors.New("thought id already present in store")
	ErrParentNotFound   = errors.New("parent thought not found in store")

	// Validation errors
	ErrConfidenceRange = errors.New("confidence must be in [0,1]")
	ErrEmptyContent    = errors.New("thought content is empty")

	// Path selection errors
	ErrBranchNotInTree = errors.New("branch does not belong to the tree")
	ErrEmptyBranch     = errors.New("branch has no thoughts")
)
