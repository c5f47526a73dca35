// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/atelier/internal/cache"
	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/image"
	"github.com/tomtom215/atelier/internal/logging"
	"github.com/tomtom215/atelier/internal/metrics"
	"github.com/tomtom215/atelier/internal/resource"
)

// cacheIDLayout formats a job's UTC completion time into its cache id.
const cacheIDLayout = "20060102_150405"

// DisplayFunc receives each collected image as soon as it is downloaded.
// Calls run on their own goroutines and are jointly awaited before Run
// returns; the index is 1-based in collection order.
type DisplayFunc func(index int, data []byte, seed int64)

// Options tune a single run. Temp runs persist the artifact record but
// skip the binary bundle; Display, when set, streams results out as they
// arrive.
type Options struct {
	Temp    bool
	Display DisplayFunc
}

// Result summarizes a finished run.
type Result struct {
	CacheID   string
	Seeds     []int64
	Collected int
	Expected  int
}

// Orchestrator drives a submission from create through polling to the
// persisted artifact and cache bundle.
type Orchestrator struct {
	provider  Provider
	resources *resource.Store
	bundles   *cache.Store
	cfg       *config.GenerationConfig
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(provider Provider, resources *resource.Store, bundles *cache.Store, cfg *config.GenerationConfig) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		resources: resources,
		bundles:   bundles,
		cfg:       cfg,
	}
}

// Run submits input and polls until every slot is collected or the
// deadline passes. Slots are collected once available and no longer
// scheduled: their blob is downloaded, its seed extracted, and the display
// sink notified. On completion the artifact record is appended and, unless
// the run is temporary, the sanitized bundle is written under a cache id
// derived from the completion time. Cancellation before anything is
// persisted returns ErrCancelled; a deadline with zero collected slots
// returns ErrNoResultsCollected.
func (o *Orchestrator) Run(ctx context.Context, author string, input resource.Input, opts Options) (*Result, error) {
	started := time.Now()
	token, err := o.provider.Create(ctx, input)
	if err != nil {
		metrics.JobsFinished.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	metrics.JobsSubmitted.Inc()

	logging.Info().
		Str("author", author).
		Str("model", input.Model).
		Int("quantity", input.Quantity).
		Msg("Generation job submitted")

	expected := input.Quantity
	collected := make(map[int]*cache.Image)
	order := make([]int, 0, expected)

	var displayWG sync.WaitGroup
	defer displayWG.Wait()

	deadline := time.NewTimer(o.cfg.JobDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

poll:
	for len(collected) < expected {
		select {
		case <-ctx.Done():
			metrics.JobsFinished.WithLabelValues("cancelled").Inc()
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		case <-deadline.C:
			break poll
		case <-ticker.C:
		}

		slots, err := o.provider.Poll(ctx, token)
		if err != nil {
			logging.Warn().Err(err).Str("token", token).Msg("Job poll failed, retrying")
			continue
		}

		for i, slot := range slots {
			if _, done := collected[i]; done || !slot.Available || slot.Scheduled {
				continue
			}
			if slot.BlobURL == "" {
				collected[i] = nil
				order = append(order, i)
				continue
			}

			data, err := o.provider.FetchBlob(ctx, slot.BlobURL)
			if err != nil {
				logging.Warn().Err(err).Int("slot", i).Msg("Blob fetch failed, will retry on next poll")
				continue
			}

			seed := image.ExtractSeed(data)
			collected[i] = &cache.Image{Data: data, Seed: seed}
			order = append(order, i)
			metrics.ImagesCollected.Inc()

			if opts.Display != nil {
				index := len(order)
				displayWG.Add(1)
				go func() {
					defer displayWG.Done()
					opts.Display(index, data, seed)
				}()
			}
		}
	}

	if len(collected) == 0 {
		metrics.JobsFinished.WithLabelValues("empty").Inc()
		return nil, ErrNoResultsCollected
	}

	completion := time.Now().UTC().Format(cacheIDLayout)

	images := make([]*cache.Image, 0, len(order))
	seeds := make([]int64, 0, len(order))
	for _, slot := range order {
		img := collected[slot]
		images = append(images, img)
		if img != nil {
			seeds = append(seeds, img.Seed)
		}
	}

	artifact := resource.Artifact{
		Author:    author,
		Timestamp: completion,
		CacheID:   completion,
		Input:     input,
		Seeds:     seeds,
	}
	persistBundle := func() error {
		if opts.Temp {
			return nil
		}
		return o.bundles.Write(completion, images)
	}
	if err := o.resources.FinalizeArtifact(artifact, persistBundle); err != nil {
		metrics.JobsFinished.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("persist artifact: %w", err)
	}

	outcome := "completed"
	if len(collected) < expected {
		outcome = "partial"
	}
	metrics.JobsFinished.WithLabelValues(outcome).Inc()
	metrics.JobDuration.Observe(time.Since(started).Seconds())

	logging.Info().
		Str("author", author).
		Str("cache_id", completion).
		Int("collected", len(collected)).
		Int("expected", expected).
		Str("outcome", outcome).
		Msg("Generation job finished")

	return &Result{
		CacheID:   completion,
		Seeds:     seeds,
		Collected: len(collected),
		Expected:  expected,
	}, nil
}
