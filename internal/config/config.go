// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package config loads sessionrec configuration.
//
// Values are layered with koanf: built-in defaults, then an optional YAML
// file, then environment variables. Struct tags are checked with
// go-playground/validator through the validation package, followed by the
// cross-field checks of the recommendation and embedding configs themselves.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/tomtom215/sessionrec/internal/embedding"
	"github.com/tomtom215/sessionrec/internal/logging"
	"github.com/tomtom215/sessionrec/internal/recommend"
)

// Store backends
const (
	BackendDuckDB = "duckdb"
	BackendNeo4j  = "neo4j"
)

// Config holds all application configuration
type Config struct {
	Store        StoreConfig        `koanf:"store"`
	Embedding    EmbeddingConfig    `koanf:"embedding"`
	Recommend    RecommendConfig    `koanf:"recommend"`
	ControlGroup ControlGroupConfig `koanf:"control_group"`
	Output       OutputConfig       `koanf:"output"`
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// StoreConfig selects and configures the graph store.
type StoreConfig struct {
	Backend string       `koanf:"backend" validate:"oneof=duckdb neo4j"`
	DuckDB  DuckDBConfig `koanf:"duckdb"`
	Neo4j   Neo4jConfig  `koanf:"neo4j"`
}

// DuckDBConfig configures the embedded store.
type DuckDBConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"` // 0 = runtime.NumCPU()
}

// Neo4jConfig configures the server-backed store.
type Neo4jConfig struct {
	URI                   string        `koanf:"uri"`
	Username              string        `koanf:"username"`
	Password              string        `koanf:"password"`
	Database              string        `koanf:"database"`
	MaxConnectionPoolSize int           `koanf:"max_connection_pool_size" validate:"gte=0"`
	ConnectTimeout        time.Duration `koanf:"connect_timeout"`
}

// EmbeddingConfig configures the profile-text embedding service.
type EmbeddingConfig struct {
	Provider         string        `koanf:"provider" validate:"oneof=openai none"`
	BaseURL          string        `koanf:"base_url" validate:"omitempty,url"`
	APIKey           string        `koanf:"api_key"`
	Model            string        `koanf:"model"`
	Dimensions       int           `koanf:"dimensions" validate:"gte=0"`
	Timeout          time.Duration `koanf:"timeout"`
	RateLimit        float64       `koanf:"rate_limit" validate:"gte=0"`
	Burst            int           `koanf:"burst" validate:"gte=0"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
	CachePath        string        `koanf:"cache_path"`
}

// RecommendConfig configures scoring, cohorts, rules and the worker pools.
type RecommendConfig struct {
	MinScore           float64 `koanf:"min_score" validate:"gte=-1,lte=1"`
	MaxRecommendations int     `koanf:"max_recommendations" validate:"gte=1"`

	CohortSize        int     `koanf:"cohort_size" validate:"gte=1"`
	CategoricalWeight float64 `koanf:"categorical_weight" validate:"gte=0"`
	EmbeddingWeight   float64 `koanf:"embedding_weight" validate:"gte=0"`

	RulePriority []string `koanf:"rule_priority" validate:"dive,oneof=practice_type job_role"`
	VetRoles     []string `koanf:"vet_roles"`
	NurseRoles   []string `koanf:"nurse_roles"`

	ResolveOverlaps bool `koanf:"resolve_overlaps"`
	Workers         int  `koanf:"workers" validate:"gte=0"`
	ScoringWorkers  int  `koanf:"scoring_workers" validate:"gte=0"`

	QueryTimeout    time.Duration `koanf:"query_timeout"`
	EmbedTimeout    time.Duration `koanf:"embed_timeout"`
	VisitorTimeout  time.Duration `koanf:"visitor_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	WriteRetries    int           `koanf:"write_retries" validate:"gte=0"`
	WriteRetryDelay time.Duration `koanf:"write_retry_delay"`

	OnlyNewVisitors bool     `koanf:"only_new_visitors"`
	VisitorIDs      []string `koanf:"visitor_ids"`
	VisitorLimit    int      `koanf:"visitor_limit" validate:"gte=0"`
}

// ControlGroupConfig configures the control/treatment split.
type ControlGroupConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Percentage  float64 `koanf:"percentage" validate:"gte=0,lte=1"`
	Seed        int64   `koanf:"seed"`
	Materialize bool    `koanf:"materialize"`
}

// OutputConfig selects run outputs.
type OutputConfig struct {
	Dir             string `koanf:"dir"`
	JSON            bool   `koanf:"json"`
	CSV             bool   `koanf:"csv"`
	Graph           bool   `koanf:"graph"`
	MetricsTextfile string `koanf:"metrics_textfile"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	Schedule        time.Duration `koanf:"schedule"` // 0 = manual trigger only
	RunOnStartup    bool          `koanf:"run_on_startup"`
	TriggerLimit    int           `koanf:"trigger_limit" validate:"gte=1"` // POST /api/v1/runs per TriggerWindow
	TriggerWindow   time.Duration `koanf:"trigger_window"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr returns the serve-mode listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Recommendation builds the engine configuration.
func (c *Config) Recommendation() *recommend.Config {
	r := recommend.DefaultConfig()
	rc := &c.Recommend

	r.MinScore = rc.MinScore
	r.MaxRecommendations = rc.MaxRecommendations
	r.Cohort = recommend.CohortConfig{
		Size:              rc.CohortSize,
		CategoricalWeight: rc.CategoricalWeight,
		EmbeddingWeight:   rc.EmbeddingWeight,
	}
	if len(rc.RulePriority) > 0 {
		r.Rules.Priority = slices.Clone(rc.RulePriority)
	}
	if len(rc.VetRoles) > 0 {
		r.Rules.VetRoles = slices.Clone(rc.VetRoles)
	}
	if len(rc.NurseRoles) > 0 {
		r.Rules.NurseRoles = slices.Clone(rc.NurseRoles)
	}
	r.ResolveOverlaps = rc.ResolveOverlaps
	if rc.Workers > 0 {
		r.Workers = rc.Workers
	}
	if rc.ScoringWorkers > 0 {
		r.ScoringWorkers = rc.ScoringWorkers
	}
	r.Timeouts = recommend.TimeoutConfig{
		Query:   rc.QueryTimeout,
		Embed:   rc.EmbedTimeout,
		Write:   rc.WriteTimeout,
		Visitor: rc.VisitorTimeout,
	}
	r.Write = recommend.WriteConfig{
		Enabled:    c.Output.Graph,
		Retries:    rc.WriteRetries,
		RetryDelay: rc.WriteRetryDelay,
	}
	r.ControlGroup = recommend.ControlGroupConfig{
		Enabled:     c.ControlGroup.Enabled,
		Percentage:  c.ControlGroup.Percentage,
		Seed:        c.ControlGroup.Seed,
		Materialize: c.ControlGroup.Materialize,
	}
	r.Visitors = recommend.VisitorFilter{
		OnlyNew: rc.OnlyNewVisitors,
		IDs:     slices.Clone(rc.VisitorIDs),
		Limit:   rc.VisitorLimit,
	}
	return r
}

// EmbeddingClient builds the embedding client configuration.
func (c *Config) EmbeddingClient() *embedding.Config {
	e := c.Embedding
	return &embedding.Config{
		Provider:         e.Provider,
		BaseURL:          e.BaseURL,
		APIKey:           e.APIKey,
		Model:            e.Model,
		Dimensions:       e.Dimensions,
		Timeout:          e.Timeout,
		RateLimit:        e.RateLimit,
		Burst:            e.Burst,
		FailureThreshold: e.FailureThreshold,
		BreakerTimeout:   e.BreakerTimeout,
		BreakerInterval:  time.Minute,
		HalfOpenRequests: 1,
		CachePath:        e.CachePath,
	}
}

// Logging converts to the logging package configuration.
func (l *LoggingConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}
