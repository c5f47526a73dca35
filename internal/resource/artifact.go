// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package resource

// Input is the exact payload submitted to the job provider. It is kept
// verbatim as an artifact's input snapshot so a finished job can be
// remixed or displayed later.
type Input struct {
	Model              string             `json:"model"`
	Params             InputParams        `json:"params"`
	Quantity           int                `json:"quantity"`
	AdditionalNetworks map[string]Network `json:"additionalNetworks"`
}

// InputParams are the per-job generation parameters.
type InputParams struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negativePrompt"`
	Scheduler      string  `json:"scheduler"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfgScale"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Seed           int64   `json:"seed"`
	ClipSkip       int     `json:"clipSkip"`
}

// Network is an auxiliary model attached to a job with a strength weight.
type Network struct {
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// Artifact describes one completed (possibly partial) generation job's
// cached result. CacheID equals Timestamp at creation and is the key into
// the binary cache store. Seeds holds one entry per collected image, in
// collection order; -1 marks an image whose seed could not be extracted.
type Artifact struct {
	Author    string  `json:"author"`
	Timestamp string  `json:"timestamp"`
	CacheID   string  `json:"cache_id"`
	Input     Input   `json:"input_snapshot"`
	Seeds     []int64 `json:"seeds"`
}
