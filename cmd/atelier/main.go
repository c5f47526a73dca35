// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package main is the entry point for the Atelier server.
//
// Atelier orchestrates text-to-image generation jobs against an external
// provider, manages the named models and templates those jobs draw from,
// and caches finished image bundles for later download.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered from defaults, an optional YAML file, and
//     environment variables (Koanf v2)
//  2. Resource store: JSON-backed collections of models, templates and
//     artifact records
//  3. Cache store: one archive per finished job, swept on a schedule
//  4. Registry resolver: model version lookups behind a circuit breaker
//     and a rate limiter
//  5. Job orchestrator: submits jobs, polls for slots, collects images
//  6. HTTP server: REST API plus a WebSocket stream per running job
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file, built-in defaults.
// Required settings are the provider and registry URLs and the provider
// API token:
//
//	export ATELIER_PROVIDER_URL=https://provider.example.com/api/v1
//	export ATELIER_PROVIDER_TOKEN=your-api-token
//	export ATELIER_REGISTRY_URL=https://registry.example.com/api/v1
//	./atelier
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting new connections, waits for in-flight requests to finish
// (10s timeout), and lets running jobs reach their poll deadline.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tomtom215/atelier/internal/api"
	"github.com/tomtom215/atelier/internal/cache"
	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/job"
	"github.com/tomtom215/atelier/internal/logging"
	"github.com/tomtom215/atelier/internal/registry"
	"github.com/tomtom215/atelier/internal/resource"
	"github.com/tomtom215/atelier/internal/service"
	"github.com/tomtom215/atelier/internal/supervisor"
	"github.com/tomtom215/atelier/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("storage_root", cfg.Storage.Root).
		Str("cache_dir", cfg.Cache.Dir).
		Str("provider_url", cfg.Provider.URL).
		Msg("Starting Atelier")

	resources, err := resource.Open(resource.Paths{
		Models:    filepath.Join(cfg.Storage.Root, cfg.Storage.ModelFile),
		Templates: filepath.Join(cfg.Storage.Root, cfg.Storage.TemplateFile),
		Artifacts: filepath.Join(cfg.Storage.Root, cfg.Storage.ArtifactFile),
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open resource store")
	}

	bundles, err := cache.New(cfg.Cache.Dir, cfg.Cache.Extension, cfg.Generation.OutputType)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache store")
	}

	// Version lookups go through a circuit breaker, then a rate limiter,
	// so that listing every model cannot hammer the registry.
	var resolver registry.Resolver = registry.NewClient(&cfg.Registry)
	resolver = registry.NewCircuitBreakerResolver(resolver)
	resolver = registry.NewRateLimitedResolver(resolver, cfg.Registry.LookupsPerSecond, cfg.Registry.LookupBurst)

	provider := job.NewHTTPProvider(&cfg.Provider)
	orchestrator := job.NewOrchestrator(provider, resources, bundles, &cfg.Generation)

	svc := service.New(resources, bundles, resolver, orchestrator, cfg)

	// Reconcile the cache with the artifact records before serving.
	if err := svc.Sweep(); err != nil {
		logging.Warn().Err(err).Msg("Startup cache sweep failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.SlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddMaintenanceService(services.NewSweepService(svc, cfg.Cache.SweepInterval))

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(svc, cfg).Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, s := range unstopped {
		logging.Warn().Str("service", s.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
