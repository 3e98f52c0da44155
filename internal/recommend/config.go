// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"fmt"
	"runtime"
	"slices"
	"time"
)

// Rule family names accepted in RulesConfig.Priority.
const (
	RulePracticeType = "practice_type"
	RuleJobRole      = "job_role"
)

// Config contains all configuration for a recommendation run.
type Config struct {
	// MinScore is the minimum cosine similarity a catalog session needs to
	// become a candidate. Pairs strictly below it are dropped.
	// Default: 0.3.
	MinScore float64 `json:"min_score"`

	// MaxRecommendations caps the final list per visitor.
	// Default: 10.
	MaxRecommendations int `json:"max_recommendations"`

	// Cohort contains parameters for the new-visitor strategy.
	Cohort CohortConfig `json:"cohort"`

	// Rules contains the rule-filter configuration.
	Rules RulesConfig `json:"rules"`

	// ResolveOverlaps drops lower scoring sessions that overlap a higher
	// scoring one before the cap is applied.
	// Default: true.
	ResolveOverlaps bool `json:"resolve_overlaps"`

	// Workers is the per-visitor worker pool size.
	// Default: runtime.NumCPU().
	Workers int `json:"workers"`

	// ScoringWorkers bounds the goroutines scoring one visitor's candidates.
	// Default: runtime.NumCPU().
	ScoringWorkers int `json:"scoring_workers"`

	// Timeouts contains per-call deadlines.
	Timeouts TimeoutConfig `json:"timeouts"`

	// Write contains graph materialization parameters.
	Write WriteConfig `json:"write"`

	// ControlGroup contains control/treatment split parameters.
	ControlGroup ControlGroupConfig `json:"control_group"`

	// Visitors selects which visitors a run processes.
	Visitors VisitorFilter `json:"visitors"`
}

// CohortConfig contains parameters for cohort discovery.
type CohortConfig struct {
	// Size is the number of similar returning visitors to use (k).
	// Default: 3.
	Size int `json:"size"`

	// CategoricalWeight weights the exact-match share of the four
	// categorical attributes. Default: 0.3.
	CategoricalWeight float64 `json:"categorical_weight"`

	// EmbeddingWeight weights the profile-text cosine similarity.
	// Default: 0.7.
	EmbeddingWeight float64 `json:"embedding_weight"`
}

// RulesConfig contains rule-filter parameters.
type RulesConfig struct {
	// Priority is the order rule families are applied in.
	// Default: practice_type, job_role.
	Priority []string `json:"priority"`

	// VetRoles are job roles that never see nursing sessions.
	VetRoles []string `json:"vet_roles"`

	// NurseRoles are job roles that only see nursing and wellbeing sessions.
	NurseRoles []string `json:"nurse_roles"`
}

// TimeoutConfig contains per-call deadlines. A timeout fails the visitor,
// never the run.
type TimeoutConfig struct {
	Query   time.Duration `json:"query"`
	Embed   time.Duration `json:"embed"`
	Write   time.Duration `json:"write"`
	Visitor time.Duration `json:"visitor"`
}

// WriteConfig contains graph materialization parameters.
type WriteConfig struct {
	// Enabled toggles the graph write stage.
	Enabled bool `json:"enabled"`

	// Retries is the number of extra attempts per visitor after a failure.
	// Default: 3.
	Retries int `json:"retries"`

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration `json:"retry_delay"`
}

// ControlGroupConfig contains control/treatment split parameters.
type ControlGroupConfig struct {
	Enabled bool `json:"enabled"`

	// Percentage is the share of visitors assigned to control, in [0, 1].
	Percentage float64 `json:"percentage"`

	// Seed makes the assignment reproducible.
	Seed int64 `json:"seed"`

	// Materialize also writes control visitors' relationships to the graph.
	Materialize bool `json:"materialize"`
}

// DefaultVetRoles are the job roles treated as veterinarians.
var DefaultVetRoles = []string{
	"Vet/Vet Surgeon",
	"Assistant Vet",
	"Vet/Owner",
	"Vet Surgeon",
	"Veterinarian",
}

// DefaultNurseRoles are the job roles treated as veterinary nurses.
var DefaultNurseRoles = []string{
	"Nurse",
	"Head Nurse/Senior Nurse",
	"Vet Nurse",
	"Student Vet Nurse",
}

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig() *Config {
	return &Config{
		MinScore:           0.3,
		MaxRecommendations: 10,
		Cohort: CohortConfig{
			Size:              3,
			CategoricalWeight: 0.3,
			EmbeddingWeight:   0.7,
		},
		Rules: RulesConfig{
			Priority:   []string{RulePracticeType, RuleJobRole},
			VetRoles:   slices.Clone(DefaultVetRoles),
			NurseRoles: slices.Clone(DefaultNurseRoles),
		},
		ResolveOverlaps: true,
		Workers:         runtime.NumCPU(),
		ScoringWorkers:  runtime.NumCPU(),
		Timeouts: TimeoutConfig{
			Query:   30 * time.Second,
			Embed:   30 * time.Second,
			Write:   30 * time.Second,
			Visitor: 2 * time.Minute,
		},
		Write: WriteConfig{
			Enabled:    true,
			Retries:    3,
			RetryDelay: 500 * time.Millisecond,
		},
		ControlGroup: ControlGroupConfig{
			Percentage: 0.15,
			Seed:       42,
		},
	}
}

// Validate checks the configuration for errors.
//
//nolint:gocyclo // validation needs to check many fields
func (c *Config) Validate() error {
	if c.MinScore < -1 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be in [-1, 1], got %f", c.MinScore)
	}
	if c.MaxRecommendations <= 0 {
		return fmt.Errorf("max_recommendations must be positive, got %d", c.MaxRecommendations)
	}
	if c.Cohort.Size <= 0 {
		return fmt.Errorf("cohort.size must be positive, got %d", c.Cohort.Size)
	}
	if c.Cohort.CategoricalWeight < 0 || c.Cohort.EmbeddingWeight < 0 {
		return fmt.Errorf("cohort weights must be non-negative")
	}
	if c.Cohort.CategoricalWeight+c.Cohort.EmbeddingWeight == 0 {
		return fmt.Errorf("cohort weights must not both be zero")
	}
	seen := make(map[string]bool, len(c.Rules.Priority))
	for _, name := range c.Rules.Priority {
		if name != RulePracticeType && name != RuleJobRole {
			return fmt.Errorf("rules.priority: unknown rule family %q", name)
		}
		if seen[name] {
			return fmt.Errorf("rules.priority: duplicate rule family %q", name)
		}
		seen[name] = true
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.ScoringWorkers < 0 {
		return fmt.Errorf("scoring_workers must be non-negative, got %d", c.ScoringWorkers)
	}
	if c.Timeouts.Query < 0 || c.Timeouts.Embed < 0 || c.Timeouts.Write < 0 || c.Timeouts.Visitor < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	if c.Write.Retries < 0 {
		return fmt.Errorf("write.retries must be non-negative, got %d", c.Write.Retries)
	}
	if c.ControlGroup.Percentage < 0 || c.ControlGroup.Percentage > 1 {
		return fmt.Errorf("control_group.percentage must be in [0, 1], got %f", c.ControlGroup.Percentage)
	}
	if c.Visitors.Limit < 0 {
		return fmt.Errorf("visitors.limit must be non-negative, got %d", c.Visitors.Limit)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Rules.Priority = slices.Clone(c.Rules.Priority)
	clone.Rules.VetRoles = slices.Clone(c.Rules.VetRoles)
	clone.Rules.NurseRoles = slices.Clone(c.Rules.NurseRoles)
	clone.Visitors.IDs = slices.Clone(c.Visitors.IDs)
	return &clone
}
