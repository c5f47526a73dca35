// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package resource defines the persisted resource collections (models,
// templates, artifacts) and the store that loads, resolves and flushes them.
package resource

import (
	"fmt"
	"strings"
)

// ModelKind identifies the class of an external model resource.
type ModelKind int

// Model kinds. Values are stable: they are persisted in the model collection file.
const (
	KindCheckpoint ModelKind = 1
	KindLoRA       ModelKind = 2
	KindVAE        ModelKind = 3
)

// ParseModelKind parses a user-supplied kind label (case-insensitive).
func ParseModelKind(s string) (ModelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ckpt", "checkpoint":
		return KindCheckpoint, nil
	case "lora":
		return KindLoRA, nil
	case "vae":
		return KindVAE, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// String returns the canonical short label for the kind.
func (k ModelKind) String() string {
	switch k {
	case KindCheckpoint:
		return "CKPT"
	case KindLoRA:
		return "LORA"
	case KindVAE:
		return "VAE"
	default:
		return fmt.Sprintf("ModelKind(%d)", int(k))
	}
}

// Valid reports whether k is a defined model kind.
func (k ModelKind) Valid() bool {
	return k == KindCheckpoint || k == KindLoRA || k == KindVAE
}

// Model is a state descriptor of an external AI model. The urn is the
// registry identifier and the uniqueness key; the name is a human label.
type Model struct {
	Kind ModelKind `json:"kind"`
	Name string    `json:"name"`
	URN  string    `json:"urn"`
}

// Template is a named, author-owned preset bundling a base model reference,
// auxiliary model references with strengths, and generation parameters.
// Model references are weak: they are resolved by urn lookup at use time.
type Template struct {
	Name           string             `json:"name"`
	Author         string             `json:"author"`
	BaseModelURN   string             `json:"base_model_urn"`
	AdditionalURNs map[string]float64 `json:"additional_models"`
	BasePrompt     string             `json:"base_prompt"`
	NegativePrompt string             `json:"negative_prompt"`
	Guidance       float64            `json:"guidance"`
	Steps          int                `json:"steps"`
}
