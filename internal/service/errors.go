// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package service

import "errors"

var (
	// ErrReservedWord rejects prompts whose leading word collides with a
	// management command.
	ErrReservedWord = errors.New("prompt starts with a reserved command word")

	// ErrNoModels is returned when a command needs models and the
	// collection is empty.
	ErrNoModels = errors.New("no models loaded")

	// ErrModelOutdated marks a model whose registry version cannot be
	// resolved; such models are refused for submission and registration.
	ErrModelOutdated = errors.New("model version is outdated or unavailable")

	// ErrInvalidDetail rejects a malformed template detail string.
	ErrInvalidDetail = errors.New("invalid template detail string")

	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
)
