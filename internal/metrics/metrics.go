// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package metrics provides Prometheus instrumentation for Atelier:
// generation job throughput and latency, cache growth and sweep activity,
// registry lookup health, and API traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generation job metrics
	JobsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_jobs_submitted_total",
			Help: "Total number of generation jobs submitted to the provider",
		},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_jobs_finished_total",
			Help: "Total number of generation jobs by terminal outcome",
		},
		[]string{"outcome"}, // "completed", "partial", "cancelled", "empty", "failed"
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atelier_job_duration_seconds",
			Help:    "Wall-clock duration of generation jobs from submission to final poll",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	ImagesCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_images_collected_total",
			Help: "Total number of result images collected from the provider",
		},
	)

	// Cache metrics
	CacheBundles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atelier_cache_bundles",
			Help: "Number of live cache bundles after the last retention sweep",
		},
	)

	CacheBundlesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_cache_bundles_written_total",
			Help: "Total number of cache bundles persisted",
		},
	)

	CacheSweepDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atelier_cache_sweep_deleted_total",
			Help: "Total number of cache files deleted by retention sweeps",
		},
	)

	// Model registry metrics
	RegistryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_registry_lookups_total",
			Help: "Total number of model registry version lookups by result",
		},
		[]string{"result"}, // "ok", "unknown", "error"
	)

	// Circuit breaker metrics (registry client)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atelier_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atelier_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atelier_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)
