// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package embedding

import (
	"github.com/rs/zerolog"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

// Client is the assembled embedder chain: cache, then resilience, then the
// upstream provider.
type Client struct {
	embedder  recommend.Embedder
	resilient *Resilient
	cache     *Cached
}

// New builds the chain described by cfg. With provider "none" the client has
// no embedder and Embedder returns nil.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg *Config, logger zerolog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Provider == ProviderNone {
		return &Client{}, nil
	}

	c := &Client{}
	c.resilient = NewResilient(NewOpenAI(cfg), cfg, logger)
	c.embedder = c.resilient

	if cfg.CachePath != "" {
		cache, err := OpenCache(cfg.CachePath, c.resilient, cfg.Model, logger)
		if err != nil {
			return nil, err
		}
		c.cache = cache
		c.embedder = cache
	}

	logger.Info().
		Str("component", "embedding").
		Str("model", cfg.Model).
		Bool("cache", c.cache != nil).
		Float64("rate_limit", cfg.RateLimit).
		Msg("Embedding client ready")
	return c, nil
}

// Embedder returns the chain head, or nil when embedding is disabled.
func (c *Client) Embedder() recommend.Embedder {
	if c.embedder == nil {
		return nil
	}
	return c.embedder
}

// BreakerState reports the circuit breaker state, "disabled" without a provider.
func (c *Client) BreakerState() string {
	if c.resilient == nil {
		return "disabled"
	}
	return c.resilient.State()
}

// Close releases the cache.
func (c *Client) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}
