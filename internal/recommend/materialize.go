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
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// materialize replaces every successfully processed visitor's RECOMMENDED
// relationships. Control visitors are written with no relationships unless
// control-group materialization is enabled. A visitor whose write still fails
// after all retries is recorded and the batch continues.
func (e *Engine) materialize(ctx context.Context, logger zerolog.Logger, result *RunResult) { //nolint:gocritic // logger passed by value is acceptable for zerolog
	generatedAt := e.now().UTC()

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.config.Workers)

	for _, id := range sortedKeys(result.Results) {
		res := result.Results[id]
		if res.Failed() {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		flags, recs := e.writePlan(res, generatedAt)
		g.Go(func() error {
			attempts, err := e.replaceWithRetry(ctx, id, flags, recs)
			if e.observer != nil {
				e.observer.GraphWrite(attempts, err)
			}

			mu.Lock()
			defer mu.Unlock()
			result.Stats.GraphWrites++
			if err != nil {
				result.Stats.GraphWriteFailures++
				result.Stats.ErrorsByKind[KindGraphWrite]++
				res.WriteErr = err
				res.WriteError = err.Error()
				logger.Error().Err(err).Str("visitor_id", id).Int("attempts", attempts).Msg("graph write failed permanently")
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().
		Int("writes", result.Stats.GraphWrites).
		Int("failures", result.Stats.GraphWriteFailures).
		Msg("graph materialization finished")
}

func (e *Engine) writePlan(res *VisitorResult, generatedAt time.Time) (VisitorFlags, []Recommendation) {
	if res.ControlGroup && !e.config.ControlGroup.Materialize {
		return VisitorFlags{ControlGroup: Control}, nil
	}

	flags := VisitorFlags{HasRecommendation: len(res.Recommendations) > 0}
	if res.ControlGroup {
		flags.ControlGroup = Control
	}

	recs := make([]Recommendation, len(res.Recommendations))
	for i := range res.Recommendations {
		recs[i] = Recommendation{
			SessionID:   res.Recommendations[i].ID,
			Similarity:  res.Recommendations[i].Similarity,
			GeneratedAt: generatedAt,
		}
	}
	return flags, recs
}

// replaceWithRetry retries the whole per-visitor replace a fixed number of
// times. The store performs each attempt atomically. A missing visitor is
// not retried.
func (e *Engine) replaceWithRetry(ctx context.Context, visitorID string, flags VisitorFlags, recs []Recommendation) (int, error) {
	var lastErr error
	maxAttempts := e.config.Write.Retries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		wctx, cancel := withTimeout(ctx, e.config.Timeouts.Write)
		err := e.store.ReplaceRecommendations(wctx, visitorID, flags, recs)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if attempt == maxAttempts || ctx.Err() != nil || errors.Is(err, ErrVisitorNotFound) {
			return attempt, fmt.Errorf("%w: visitor %s after %d attempt(s): %w", ErrGraphWrite, visitorID, attempt, lastErr)
		}

		e.logger.Debug().Err(err).Str("visitor_id", visitorID).Int("attempt", attempt).Msg("graph write failed, retrying")
		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("%w: visitor %s: %w", ErrGraphWrite, visitorID, ctx.Err())
		case <-time.After(e.config.Write.RetryDelay):
		}
	}
	return maxAttempts, fmt.Errorf("%w: visitor %s: %w", ErrGraphWrite, visitorID, lastErr)
}
