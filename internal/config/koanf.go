// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"sessionrec.yaml",
	"sessionrec.yml",
	"/etc/sessionrec/config.yaml",
	"/etc/sessionrec/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	r := recommend.DefaultConfig()

	return &Config{
		Store: StoreConfig{
			Backend: BackendDuckDB,
			DuckDB: DuckDBConfig{
				Path:      "/data/sessionrec.duckdb",
				MaxMemory: "2GB",
				Threads:   0, // 0 = use runtime.NumCPU()
			},
			Neo4j: Neo4jConfig{
				URI:                   "bolt://localhost:7687",
				Username:              "neo4j",
				Database:              "neo4j",
				MaxConnectionPoolSize: 50,
				ConnectTimeout:        10 * time.Second,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:         "openai",
			Model:            "text-embedding-3-small",
			Timeout:          30 * time.Second,
			RateLimit:        20,
			Burst:            5,
			FailureThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Recommend: RecommendConfig{
			MinScore:           r.MinScore,
			MaxRecommendations: r.MaxRecommendations,
			CohortSize:         r.Cohort.Size,
			CategoricalWeight:  r.Cohort.CategoricalWeight,
			EmbeddingWeight:    r.Cohort.EmbeddingWeight,
			RulePriority:       r.Rules.Priority,
			VetRoles:           r.Rules.VetRoles,
			NurseRoles:         r.Rules.NurseRoles,
			ResolveOverlaps:    true,
			Workers:            runtime.NumCPU(),
			ScoringWorkers:     runtime.NumCPU(),
			QueryTimeout:       r.Timeouts.Query,
			EmbedTimeout:       r.Timeouts.Embed,
			VisitorTimeout:     r.Timeouts.Visitor,
			WriteTimeout:       r.Timeouts.Write,
			WriteRetries:       r.Write.Retries,
			WriteRetryDelay:    r.Write.RetryDelay,
		},
		ControlGroup: ControlGroupConfig{
			Enabled:    false,
			Percentage: r.ControlGroup.Percentage,
			Seed:       r.ControlGroup.Seed,
		},
		Output: OutputConfig{
			Dir:   "/data/output",
			JSON:  true,
			CSV:   true,
			Graph: true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8390,
			Schedule:        0,
			RunOnStartup:    false,
			TriggerLimit:    5,
			TriggerWindow:   time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration from defaults, a YAML file and the
// environment, then validates it. path overrides the config file search when
// non-empty and must exist.
func LoadWithKoanf(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := path
	if configPath == "" {
		configPath = findConfigFile()
	} else if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"recommend.rule_priority",
	"recommend.vet_roles",
	"recommend.nurse_roles",
	"recommend.visitor_ids",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	// Store
	"store_backend":         "store.backend",
	"duckdb_path":           "store.duckdb.path",
	"duckdb_max_memory":     "store.duckdb.max_memory",
	"duckdb_threads":        "store.duckdb.threads",
	"neo4j_uri":             "store.neo4j.uri",
	"neo4j_username":        "store.neo4j.username",
	"neo4j_password":        "store.neo4j.password",
	"neo4j_database":        "store.neo4j.database",
	"neo4j_max_pool_size":   "store.neo4j.max_connection_pool_size",
	"neo4j_connect_timeout": "store.neo4j.connect_timeout",

	// Embedding
	"embedding_provider":          "embedding.provider",
	"embedding_base_url":          "embedding.base_url",
	"openai_base_url":             "embedding.base_url",
	"openai_api_key":              "embedding.api_key",
	"embedding_api_key":           "embedding.api_key",
	"embedding_model":             "embedding.model",
	"embedding_dimensions":        "embedding.dimensions",
	"embedding_timeout":           "embedding.timeout",
	"embedding_rate_limit":        "embedding.rate_limit",
	"embedding_burst":             "embedding.burst",
	"embedding_failure_threshold": "embedding.failure_threshold",
	"embedding_breaker_timeout":   "embedding.breaker_timeout",
	"embedding_cache_path":        "embedding.cache_path",

	// Recommendation
	"min_score":           "recommend.min_score",
	"max_recommendations": "recommend.max_recommendations",
	"cohort_size":         "recommend.cohort_size",
	"categorical_weight":  "recommend.categorical_weight",
	"embedding_weight":    "recommend.embedding_weight",
	"rule_priority":       "recommend.rule_priority",
	"vet_roles":           "recommend.vet_roles",
	"nurse_roles":         "recommend.nurse_roles",
	"resolve_overlaps":    "recommend.resolve_overlaps",
	"recommend_workers":   "recommend.workers",
	"scoring_workers":     "recommend.scoring_workers",
	"query_timeout":       "recommend.query_timeout",
	"embed_timeout":       "recommend.embed_timeout",
	"visitor_timeout":     "recommend.visitor_timeout",
	"write_timeout":       "recommend.write_timeout",
	"write_retries":       "recommend.write_retries",
	"write_retry_delay":   "recommend.write_retry_delay",
	"only_new_visitors":   "recommend.only_new_visitors",
	"visitor_ids":         "recommend.visitor_ids",
	"visitor_limit":       "recommend.visitor_limit",

	// Control group
	"control_group_enabled":     "control_group.enabled",
	"control_group_percentage":  "control_group.percentage",
	"control_group_seed":        "control_group.seed",
	"control_group_materialize": "control_group.materialize",

	// Output
	"output_dir":       "output.dir",
	"output_json":      "output.json",
	"output_csv":       "output.csv",
	"output_graph":     "output.graph",
	"metrics_textfile": "output.metrics_textfile",

	// Server
	"http_host":        "server.host",
	"http_port":        "server.port",
	"run_schedule":     "server.schedule",
	"run_on_startup":   "server.run_on_startup",
	"trigger_limit":    "server.trigger_limit",
	"trigger_window":   "server.trigger_window",
	"shutdown_timeout": "server.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - DUCKDB_PATH -> store.duckdb.path
//   - OPENAI_API_KEY -> embedding.api_key
//   - MIN_SCORE -> recommend.min_score
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	// Unmapped variables are skipped so unrelated environment does not leak in.
	return ""
}
