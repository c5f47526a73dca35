// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/service"
)

// Router assembles the HTTP surface.
type Router struct {
	handler *Handler
	cfg     *config.Config
}

// NewRouter creates a router over the service.
func NewRouter(svc *service.Service, cfg *config.Config) *Router {
	return &Router{handler: NewHandler(svc, cfg), cfg: cfg}
}

// Setup builds the route tree with the global middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.Get("/healthz", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.Server.RateLimitReqs, router.cfg.Server.RateLimitWindow))

		r.Get("/overview", router.handler.Overview)

		r.Route("/models", func(r chi.Router) {
			r.Post("/", router.handler.AddModel)
			r.Get("/{kind}/{query}", router.handler.GetModel)
			r.Delete("/{kind}/{query}", router.handler.DeleteModel)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", router.handler.AddTemplate)
			r.Get("/{query}", router.handler.GetTemplate)
			r.Delete("/{author}/{name}", router.handler.DeleteTemplate)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", router.handler.Generate)
			r.Get("/", router.handler.Jobs)
			r.Get("/{id}", router.handler.Job)
			r.Delete("/{id}", router.handler.CancelJob)
			r.Get("/{id}/stream", router.handler.StreamJob)
		})

		r.Route("/artifacts", func(r chi.Router) {
			r.Post("/{cacheID}/remix", router.handler.Remix)
			r.Get("/{cacheID}/download", router.handler.Download)
		})
	})

	return r
}
