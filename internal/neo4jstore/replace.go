// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package neo4jstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

const (
	setFlagsQuery = `
		MATCH (v:Visitor {badge_id: $id})
		SET v.has_recommendation = $hasRecommendation, v.control_group = $controlGroup
		RETURN count(v) AS matched`

	deleteRecommendationsQuery = `
		MATCH (:Visitor {badge_id: $id})-[r:RECOMMENDED]->(:Session)
		DELETE r`

	createRecommendationsQuery = `
		MATCH (v:Visitor {badge_id: $id})
		UNWIND $recs AS rec
		MATCH (s:Session {session_id: rec.session_id})
		CREATE (v)-[:RECOMMENDED {similarity: rec.similarity, generated_at: rec.generated_at}]->(s)`
)

// ReplaceRecommendations implements recommend.Store. Flags, the delete and
// the create run in one write transaction; the driver retries it as a unit
// on transient errors.
func (s *Store) ReplaceRecommendations(ctx context.Context, visitorID string, flags recommend.VisitorFlags, recs []recommend.Recommendation) (err error) {
	defer observe("replace_recommendations", time.Now(), &err)

	params := map[string]any{
		"id":                visitorID,
		"hasRecommendation": flags.HasRecommendation,
		"controlGroup":      int64(flags.ControlGroup),
		"recs":              recommendationParams(recs),
	}

	return s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, setFlagsQuery, params)
		if err != nil {
			return nil, fmt.Errorf("set flags: %w", err)
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, fmt.Errorf("set flags: %w", err)
		}
		if getInt(record, "matched") == 0 {
			return nil, fmt.Errorf("%w: %s", recommend.ErrVisitorNotFound, visitorID)
		}

		if err := runConsume(ctx, tx, deleteRecommendationsQuery, params); err != nil {
			return nil, fmt.Errorf("delete recommendations: %w", err)
		}
		if len(recs) == 0 {
			return nil, nil
		}
		if err := runConsume(ctx, tx, createRecommendationsQuery, params); err != nil {
			return nil, fmt.Errorf("create recommendations: %w", err)
		}
		return nil, nil
	})
}

func recommendationParams(recs []recommend.Recommendation) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = map[string]any{
			"session_id":   r.SessionID,
			"similarity":   r.Similarity,
			"generated_at": r.GeneratedAt.UTC(),
		}
	}
	return out
}

func runConsume(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}
