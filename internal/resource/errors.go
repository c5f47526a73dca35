// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package resource

import "errors"

var (
	// ErrNotFound is returned when a query matches no resource.
	ErrNotFound = errors.New("resource not found")

	// ErrIndexOutOfRange is returned when a numeric query exceeds the
	// collection size. Distinct from ErrNotFound so callers can report
	// the available range.
	ErrIndexOutOfRange = errors.New("resource index out of range")

	// ErrDuplicateResource is returned when adding a model with an
	// existing urn or a template with an existing (author, name) pair.
	ErrDuplicateResource = errors.New("resource already exists")

	// ErrNumericName rejects purely numeric resource names, which would
	// be ambiguous with positional index queries.
	ErrNumericName = errors.New("resource name cannot be numeric only")

	// ErrUnknownKind is returned for an unrecognized model kind label.
	ErrUnknownKind = errors.New("unknown model kind")
)
