// Copyright (C) 2025 Mindweave AI (oss@mindweave.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import "errors"

// Sentinel errors for the orchestrator package.
var (
	// ErrNoTree is returned when a project has no finished workflow
	// to select from.
	ErrNoTree = errors.New("no thought tree for project")

	// ErrBranchIndex is returned for a branch index outside the
	// tree's branches.
	ErrBranchIndex = errors.New("branch index out of range")
)
