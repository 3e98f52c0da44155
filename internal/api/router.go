// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package api serves the serve-mode ops HTTP surface: health, Prometheus
// metrics, the latest run summary, a rate-limited run trigger and a
// per-visitor view of the written recommendations.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

// Store is the read side of the graph store the API needs.
type Store interface {
	Ping(ctx context.Context) error
	Recommendations(ctx context.Context, visitorID string) ([]recommend.Recommendation, error)
	Flags(ctx context.Context, visitorID string) (recommend.VisitorFlags, error)
}

// Runner triggers runs and reports the latest one.
type Runner interface {
	Trigger() error
	Running() bool
	Latest() (*recommend.RunResult, error)
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	TriggerLimit  int
	TriggerWindow time.Duration

	// StoreTimeout bounds store calls made by handlers.
	StoreTimeout time.Duration
}

// Handler holds the API's dependencies.
type Handler struct {
	store        Store
	runner       Runner
	storeTimeout time.Duration
	logger       zerolog.Logger
}

// NewHandler creates the handler set.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(store Store, runner Runner, storeTimeout time.Duration, logger zerolog.Logger) *Handler {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Handler{
		store:        store,
		runner:       runner,
		storeTimeout: storeTimeout,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// NewRouter builds the chi router.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRouter(store Store, runner Runner, cfg RouterConfig, logger zerolog.Logger) http.Handler {
	h := NewHandler(store, runner, cfg.StoreTimeout, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.Use(requestMetrics)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs/latest", h.LatestRun)
		r.With(triggerRateLimit(cfg.TriggerLimit, cfg.TriggerWindow)).Post("/runs", h.TriggerRun)
		r.Get("/visitors/{id}/recommendations", h.VisitorRecommendations)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	return r
}
