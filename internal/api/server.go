// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Package api exposes the ingestion and operations HTTP surface. It is a
// thin adapter over the pipeline: handlers decode, call the dispatcher or
// aggregator, and encode. No pipeline logic lives here.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coursetrace/coursetrace/internal/config"
	"github.com/coursetrace/coursetrace/internal/dispatch"
	"github.com/coursetrace/coursetrace/internal/progress"
	"github.com/coursetrace/coursetrace/internal/queue"
	"github.com/coursetrace/coursetrace/internal/tenant"
)

// Server holds the handler dependencies.
type Server struct {
	dispatcher *dispatch.Dispatcher
	aggregator *progress.Aggregator
	registry   *tenant.Registry
	depth      *queue.DepthTracker
	cfg        config.APIConfig
}

// NewServer creates the API server.
func NewServer(d *dispatch.Dispatcher, a *progress.Aggregator, reg *tenant.Registry, depth *queue.DepthTracker, cfg config.APIConfig) *Server {
	return &Server{
		dispatcher: d,
		aggregator: a,
		registry:   reg,
		depth:      depth,
		cfg:        cfg,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Unauthenticated operational endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
		}
		r.Use(s.bearerAuth)

		r.Post("/events", s.handleIngest)
		r.Get("/queues", s.handleQueues)
		r.Get("/progress", s.handleProgress)
	})

	return r
}

// HTTPServer wraps the router in a server with the configured timeouts.
func (s *Server) HTTPServer(addr string, timeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       2 * timeout,
	}
}
