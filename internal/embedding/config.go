// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package embedding

import (
	"fmt"
	"time"
)

// Providers
const (
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config configures the embedding client chain.
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int

	// Timeout bounds a single upstream call including retries inside the client.
	Timeout time.Duration

	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64
	Burst     int

	// Circuit breaker
	FailureThreshold uint32
	BreakerTimeout   time.Duration
	BreakerInterval  time.Duration
	HalfOpenRequests uint32

	// CachePath enables the badger vector cache when set.
	CachePath string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Provider:         ProviderOpenAI,
		Model:            "text-embedding-3-small",
		Timeout:          30 * time.Second,
		RateLimit:        20,
		Burst:            5,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
		BreakerInterval:  time.Minute,
		HalfOpenRequests: 1,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderNone:
		return nil
	case ProviderOpenAI:
	default:
		return fmt.Errorf("embedding provider must be %q or %q, got %q", ProviderOpenAI, ProviderNone, c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedding dimensions must be >= 0, got %d", c.Dimensions)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("embedding rate limit must be >= 0, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.Burst < 1 {
		return fmt.Errorf("embedding burst must be >= 1 when rate limiting, got %d", c.Burst)
	}
	if c.FailureThreshold == 0 {
		return fmt.Errorf("embedding failure threshold must be > 0")
	}
	return nil
}
