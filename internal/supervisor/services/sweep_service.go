// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package services

import (
	"context"
	"time"

	"github.com/tomtom215/atelier/internal/logging"
)

// Sweeper expires stale artifact bundles. Satisfied by *service.Service.
type Sweeper interface {
	Sweep() error
}

// SweepService runs the cache sweep on a fixed interval. A failing sweep
// is logged and retried on the next tick rather than crashing the service.
type SweepService struct {
	sweeper  Sweeper
	interval time.Duration
	name     string
}

// NewSweepService creates a periodic sweep service.
func NewSweepService(sweeper Sweeper, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweepService{
		sweeper:  sweeper,
		interval: interval,
		name:     "cache-sweeper",
	}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("Cache sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Cache sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweeper.Sweep(); err != nil {
				logging.Warn().Err(err).Msg("Cache sweep failed")
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *SweepService) String() string {
	return s.name
}
