// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package job builds provider inputs from template resources, submits
// generation jobs, and polls them to completion, collecting result images
// as their slots become available.
package job

import (
	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/image"
	"github.com/tomtom215/atelier/internal/resource"
)

// BuildInput assembles the provider payload for a template and a user
// prompt. The user prompt is appended to the template's base prompt with
// the configured parameter delimiter, the seed is left random, and every
// additional model of the template is attached as a Lora network.
func BuildInput(t resource.Template, prompt string, cfg *config.GenerationConfig) resource.Input {
	networks := make(map[string]resource.Network, len(t.AdditionalURNs))
	for urn, strength := range t.AdditionalURNs {
		networks[urn] = resource.Network{Type: "Lora", Strength: strength}
	}

	return resource.Input{
		Model: t.BaseModelURN,
		Params: resource.InputParams{
			Prompt:         t.BasePrompt + cfg.PromptDelimiter + prompt,
			NegativePrompt: t.NegativePrompt,
			Scheduler:      cfg.Sampler,
			Steps:          t.Steps,
			CFGScale:       t.Guidance,
			Width:          cfg.Width,
			Height:         cfg.Height,
			Seed:           image.UnknownSeed,
			ClipSkip:       cfg.ClipSkip,
		},
		Quantity:           cfg.BatchSize,
		AdditionalNetworks: networks,
	}
}

// RemixInput derives a fresh input from a finished artifact's snapshot,
// pinning the seed to the integer mean of the collected seeds so the remix
// explores the neighbourhood of the original batch. An artifact without
// seeds keeps the random seed.
func RemixInput(a resource.Artifact) resource.Input {
	input := a.Input
	if len(a.Seeds) == 0 {
		input.Params.Seed = image.UnknownSeed
		return input
	}

	var sum int64
	for _, seed := range a.Seeds {
		sum += seed
	}
	input.Params.Seed = sum / int64(len(a.Seeds))
	return input
}
