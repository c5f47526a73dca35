// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package job

import "errors"

var (
	// ErrSubmissionFailed wraps a provider error on job creation. Nothing
	// is persisted when submission fails.
	ErrSubmissionFailed = errors.New("job submission failed")

	// ErrCancelled is returned when a run's context is cancelled before
	// the job reaches a terminal state.
	ErrCancelled = errors.New("job cancelled")

	// ErrNoResultsCollected is returned when the deadline passes without a
	// single slot becoming available.
	ErrNoResultsCollected = errors.New("no results collected before deadline")
)
