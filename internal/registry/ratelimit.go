// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package registry

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedResolver throttles lookups against the registry. Bulk listings
// resolve a version per stored model, and without throttling a large
// collection turns into a burst of upstream requests.
type RateLimitedResolver struct {
	resolver Resolver
	limiter  *rate.Limiter
}

// NewRateLimitedResolver wraps a resolver with a token bucket allowing
// lookupsPerSecond sustained lookups with the given burst.
func NewRateLimitedResolver(resolver Resolver, lookupsPerSecond float64, burst int) *RateLimitedResolver {
	return &RateLimitedResolver{
		resolver: resolver,
		limiter:  rate.NewLimiter(rate.Limit(lookupsPerSecond), burst),
	}
}

// Resolve waits for limiter capacity, then delegates. Context cancellation
// during the wait is returned as an error.
func (r *RateLimitedResolver) Resolve(ctx context.Context, urn string) (*VersionInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("registry rate limit wait: %w", err)
	}
	return r.resolver.Resolve(ctx, urn)
}
