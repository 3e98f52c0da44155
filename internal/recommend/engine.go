// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Note: This package has no dependencies on other internal packages. Storage,
// embeddings, exports and metrics are injected through interfaces.

// Observer receives run events for metrics. Implementations must be safe for
// concurrent use.
type Observer interface {
	VisitorProcessed(result *VisitorResult, elapsed time.Duration)
	GraphWrite(attempts int, err error)
	RunCompleted(stats *RunStatistics)
}

// Engine runs the batch recommendation pipeline. Only one run may be active
// at a time; concurrent calls to Run fail with ErrRunInProgress.
type Engine struct {
	config   *Config
	logger   zerolog.Logger
	store    Store
	embedder Embedder
	filter   RuleFilter
	exporter Exporter
	observer Observer

	running atomic.Bool
	now     func() time.Time
}

// NewEngine creates an engine. embedder may be nil when no visitor needs the
// cohort strategy; cohort discovery then degrades to an empty cohort.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, store Store, embedder Embedder, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if store == nil {
		return nil, errors.New("store is required")
	}

	return &Engine{
		config:   cfg.Clone(),
		logger:   logger.With().Str("component", "recommend").Logger(),
		store:    store,
		embedder: embedder,
		filter:   NewDeterministicFilter(cfg.Rules),
		now:      time.Now,
	}, nil
}

// SetRuleFilter replaces the default deterministic rule filter.
func (e *Engine) SetRuleFilter(f RuleFilter) {
	e.filter = f
}

// SetExporter enables file exports.
func (e *Engine) SetExporter(x Exporter) {
	e.exporter = x
}

// SetObserver attaches a metrics observer.
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// Running reports whether a run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run processes all selected visitors and writes the outputs. The returned
// result is never nil and its statistics are populated even when err != nil.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		Config:  *e.config.Clone(),
		Results: make(map[string]*VisitorResult),
		Stats: RunStatistics{
			RunID:        uuid.NewString(),
			StartedAt:    e.now().UTC(),
			ErrorsByKind: make(map[string]int),
			Guardrail:    GuardrailReport{OverLimit: []OverLimitViolation{}, Overlaps: []OverlapViolation{}},
		},
	}

	if !e.running.CompareAndSwap(false, true) {
		result.Stats.Fatal = ErrRunInProgress.Error()
		return result, ErrRunInProgress
	}
	defer e.running.Store(false)

	logger := e.logger.With().Str("run_id", result.Stats.RunID).Logger()
	err := e.run(ctx, logger, result)

	stats := &result.Stats
	stats.FinishedAt = e.now().UTC()
	stats.Duration = stats.FinishedAt.Sub(stats.StartedAt)
	if err != nil && stats.Fatal == "" {
		stats.Fatal = err.Error()
	}
	if e.observer != nil {
		e.observer.RunCompleted(stats)
	}

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Int("visitors_processed", stats.VisitorsProcessed).
		Int("with_recommendations", stats.VisitorsWithRecommendations).
		Int("without_recommendations", stats.VisitorsWithoutRecommendations).
		Int("total_recommendations", stats.TotalRecommendations).
		Int("unique_sessions", stats.UniqueSessionsRecommended).
		Int("errors", stats.Errors).
		Int("embedding_failures", stats.EmbeddingFailures).
		Int("guardrail_violations", stats.Guardrail.Violations()).
		Int("control_visitors", stats.ControlVisitors).
		Dur("duration", stats.Duration).
		Msg("recommendation run finished")

	return result, err
}

func (e *Engine) run(ctx context.Context, logger zerolog.Logger, result *RunResult) error { //nolint:gocritic // logger passed by value is acceptable for zerolog
	logger.Info().Msg("recommendation run started")

	catalog, err := LoadCatalog(ctx, e.store, e.config.Timeouts.Query)
	if err != nil {
		return err
	}
	result.Stats.CatalogSessions = catalog.Len()
	if catalog.Skipped() > 0 {
		logger.Warn().Int("skipped", catalog.Skipped()).Msg("catalog sessions without embeddings skipped")
	}

	ids, err := e.visitorIDs(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("visitors", len(ids)).
		Int("catalog_sessions", catalog.Len()).
		Int("workers", e.config.Workers).
		Msg("processing visitors")

	e.processAll(ctx, logger, catalog, ids, result)
	if err := ctx.Err(); err != nil {
		e.aggregate(result)
		return fmt.Errorf("run canceled after %d of %d visitors: %w", len(result.Results), len(ids), err)
	}
	e.aggregate(result)

	report, overlaps := CheckGuardrails(result.Results, e.config.MaxRecommendations)
	result.Stats.Guardrail = report
	LogGuardrails(logger, &report)

	result.Assignment = AssignControlGroup(sortedKeys(result.Results), e.config.ControlGroup)
	for id, res := range result.Results {
		res.ControlGroup = result.Assignment[id] == Control
		if res.ControlGroup {
			result.Stats.ControlVisitors++
		} else {
			result.Stats.TreatmentVisitors++
		}
	}

	if e.config.Write.Enabled {
		e.materialize(ctx, logger, result)
	}

	if e.exporter != nil {
		files, err := e.exporter.Export(ctx, result, overlaps)
		result.Stats.ExportedFiles = files
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		logger.Info().Strs("files", files).Msg("exports written")
	}
	return nil
}

func (e *Engine) visitorIDs(ctx context.Context) ([]string, error) {
	qctx, cancel := withTimeout(ctx, e.config.Timeouts.Query)
	defer cancel()

	ids, err := e.store.VisitorIDs(qctx, e.config.Visitors)
	if err != nil {
		return nil, fmt.Errorf("list visitors: %w", err)
	}
	if limit := e.config.Visitors.Limit; limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// processAll runs the per-visitor pipeline on a bounded pool. Visitor
// failures are recorded in the result and never stop the pool. On
// cancellation no further visitors are dispatched.
func (e *Engine) processAll(ctx context.Context, logger zerolog.Logger, catalog *Catalog, ids []string, result *RunResult) { //nolint:gocritic // logger passed by value is acceptable for zerolog
	cache := newRunCache(ctx)
	gen := newCandidateGenerator(e.store, e.embedder, e.config, cache)
	scorer := NewScorer(catalog, e.config.MinScore, e.config.ScoringWorkers)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.config.Workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			res := e.processVisitor(ctx, logger, gen, scorer, id)
			if e.observer != nil {
				e.observer.VisitorProcessed(res, time.Since(start))
			}
			mu.Lock()
			result.Results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) processVisitor(ctx context.Context, logger zerolog.Logger, gen *CandidateGenerator, scorer *Scorer, id string) *VisitorResult { //nolint:gocritic // logger passed by value is acceptable for zerolog
	res := &VisitorResult{
		Visitor:         Visitor{ID: id},
		RawCandidates:   []ScoredSession{},
		Recommendations: []ScoredSession{},
		RuleTrace:       []string{},
	}
	vlog := logger.With().Str("visitor_id", id).Logger()

	vctx, cancel := withTimeout(ctx, e.config.Timeouts.Visitor)
	defer cancel()

	fail := func(stage string, err error) *VisitorResult {
		res.Err = fmt.Errorf("%s: %w", stage, err)
		res.ErrorKind = ErrorKind(err)
		res.Error = res.Err.Error()
		vlog.Warn().Err(err).Str("stage", stage).Str("kind", res.ErrorKind).Msg("visitor failed")
		return res
	}

	qctx, qcancel := withTimeout(vctx, e.config.Timeouts.Query)
	visitor, err := e.store.Visitor(qctx, id)
	qcancel()
	if err != nil {
		return fail("load visitor", err)
	}
	res.Visitor = *visitor

	cands, err := gen.Generate(vctx, visitor)
	if err != nil {
		return fail("candidates", err)
	}
	res.Strategy = cands.Strategy
	res.Cohort = cands.Cohort
	res.CohortRelaxed = cands.Relaxed
	res.CohortSkipped = cands.Skipped
	res.CandidateCount = len(cands.Sessions)
	if cands.CohortErr != nil {
		res.CohortErr = cands.CohortErr
		res.CohortError = cands.CohortErr.Error()
		vlog.Warn().Err(cands.CohortErr).Msg("cohort discovery failed, continuing with no cohort")
	}
	if len(cands.Skipped) > 0 {
		vlog.Warn().Strs("skipped", cands.Skipped).Msg("returning visitor profiles could not be embedded, left out of cohort")
	}
	if cands.Relaxed && len(cands.Cohort) > 0 {
		vlog.Debug().Int("cohort", len(cands.Cohort)).Msg("cohort pre-filter relaxed")
	}

	scored, err := scorer.Score(vctx, cands.Sessions)
	if err != nil {
		return fail("score", err)
	}
	res.RawCandidates = scored

	filtered, trace, err := e.filter.Filter(vctx, visitor, scored)
	if err != nil {
		return fail("rules", err)
	}
	if trace != nil {
		res.RuleTrace = trace
	}

	final, dropped := SelectSessions(filtered, e.config.MaxRecommendations, e.config.ResolveOverlaps)
	res.Recommendations = final
	res.DroppedOverlaps = dropped

	vlog.Debug().
		Str("strategy", string(res.Strategy)).
		Int("candidates", res.CandidateCount).
		Int("scored", len(scored)).
		Int("filtered", len(filtered)).
		Int("recommended", len(final)).
		Msg("visitor processed")
	return res
}

// aggregate fills the per-visitor counters of the run statistics.
func (e *Engine) aggregate(result *RunResult) {
	stats := &result.Stats
	unique := make(map[string]struct{})

	for _, res := range result.Results {
		stats.VisitorsProcessed++
		if res.Failed() {
			stats.Errors++
			stats.ErrorsByKind[res.ErrorKind]++
			continue
		}
		embedFailures := len(res.CohortSkipped)
		if res.CohortErr != nil {
			embedFailures++
		}
		if embedFailures > 0 {
			stats.EmbeddingFailures += embedFailures
			stats.ErrorsByKind[KindEmbedding] += embedFailures
		}
		switch res.Strategy {
		case StrategyOwnHistory:
			stats.OwnHistoryVisitors++
		case StrategyCohort:
			stats.CohortVisitors++
			if res.CohortRelaxed {
				stats.CohortRelaxed++
			}
		}
		if len(res.Recommendations) == 0 {
			stats.VisitorsWithoutRecommendations++
			continue
		}
		stats.VisitorsWithRecommendations++
		stats.TotalRecommendations += len(res.Recommendations)
		for i := range res.Recommendations {
			unique[res.Recommendations[i].ID] = struct{}{}
		}
	}
	stats.UniqueSessionsRecommended = len(unique)
}
