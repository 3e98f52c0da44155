// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sessionrec/internal/metrics"
	"github.com/tomtom215/sessionrec/internal/recommend"
)

const breakerName = "embedding"

// Resilient guards an embedder with a rate limiter, a per-call timeout and a
// circuit breaker. Every error it returns wraps recommend.ErrEmbeddingService.
type Resilient struct {
	next    recommend.Embedder
	breaker *gobreaker.CircuitBreaker[[]float32]
	limiter *rate.Limiter
	timeout time.Duration
}

// NewResilient wraps next.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewResilient(next recommend.Embedder, cfg *Config, logger zerolog.Logger) *Resilient {
	log := logger.With().Str("component", "embedding").Logger()

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Cancellation by the caller says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, int(to))
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Embedding circuit breaker state changed")
		},
	}
	metrics.SetCircuitBreakerState(breakerName, int(gobreaker.StateClosed))

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}

	return &Resilient{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[[]float32](settings),
		limiter: limiter,
		timeout: cfg.Timeout,
	}
}

// Embed implements recommend.Embedder.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", recommend.ErrEmbeddingService, err)
		}
	}

	start := time.Now()
	vec, err := r.breaker.Execute(func() ([]float32, error) {
		if r.timeout <= 0 {
			return r.next.Embed(ctx, text)
		}
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.next.Embed(cctx, text)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordEmbedding("circuit_open", 0)
		return nil, fmt.Errorf("%w: %w", recommend.ErrEmbeddingService, err)
	case err != nil:
		metrics.RecordEmbedding("error", time.Since(start))
		return nil, fmt.Errorf("%w: %w", recommend.ErrEmbeddingService, err)
	}
	metrics.RecordEmbedding("success", time.Since(start))
	return vec, nil
}

// State reports the breaker state for health output.
func (r *Resilient) State() string {
	return r.breaker.State().String()
}
