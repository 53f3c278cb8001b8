// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package api exposes the engine over HTTP using the chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatewarden/gatewarden/internal/config"
)

// Router assembles the HTTP surface.
type Router struct {
	handler *Handler
	cfg     *config.APIConfig
}

// NewRouter builds the router around the handler.
func NewRouter(handler *Handler, cfg *config.APIConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup wires middleware and routes. The attempt ingestion route carries
// its own generous rate limit: it sits in the authentication hot path of
// the callers, so throttling it too hard would blind the engine.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health", router.handler.Health)
	r.Get("/api/v1/health/live", router.handler.HealthLive)
	r.Get("/api/v1/health/ready", router.handler.HealthReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(httprate.LimitByIP(router.cfg.RateLimitRequests, router.cfg.RateLimitWindow)).
			Post("/attempts", router.handler.RecordAttempt)

		r.Route("/admin", func(r chi.Router) {
			r.Use(httprate.LimitByIP(100, router.cfg.RateLimitWindow))

			r.Get("/patterns", router.handler.ListPatterns)
			r.Get("/blocked", router.handler.ListBlocked)
			r.Get("/stats", router.handler.Stats)

			r.Post("/blocks", router.handler.BlockIP)
			r.Delete("/blocks/{ip}", router.handler.UnblockIP)
			r.Post("/locks", router.handler.LockAccount)
			r.Delete("/locks/{account}", router.handler.UnlockAccount)

			r.Post("/maintenance/sweep", router.handler.RunSweep)
		})
	})

	return r
}
