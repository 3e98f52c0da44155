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

// CatalogSessions implements recommend.Store.
func (s *Store) CatalogSessions(ctx context.Context) (sessions []recommend.CatalogSession, err error) {
	defer observe("catalog_sessions", time.Now(), &err)

	records, err := s.read(ctx, `
		MATCH (s:Session)
		RETURN s.session_id AS session_id, s.title AS title, s.stream AS stream,
		       s.venue AS venue, s.date AS date, s.start_time AS start_time,
		       s.end_time AS end_time, s.sponsored AS sponsored,
		       s.sponsor_name AS sponsor_name, s.embedding AS embedding
		ORDER BY session_id`, nil)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	sessions = make([]recommend.CatalogSession, 0, len(records))
	for _, record := range records {
		cs := recommend.CatalogSession{
			ID:          getString(record, "session_id"),
			Title:       getString(record, "title"),
			Stream:      getString(record, "stream"),
			Venue:       getString(record, "venue"),
			Date:        getString(record, "date"),
			StartTime:   getString(record, "start_time"),
			EndTime:     getString(record, "end_time"),
			Sponsored:   getBool(record, "sponsored"),
			SponsorName: getString(record, "sponsor_name"),
		}
		if cs.Embedding, err = getVector(record, "embedding"); err != nil {
			return nil, fmt.Errorf("session %s: %w", cs.ID, err)
		}
		sessions = append(sessions, cs)
	}
	return sessions, nil
}

// VisitorIDs implements recommend.Store. filter.Limit is applied by the engine.
func (s *Store) VisitorIDs(ctx context.Context, filter recommend.VisitorFilter) (ids []string, err error) {
	defer observe("visitor_ids", time.Now(), &err)

	records, err := s.read(ctx, `
		MATCH (v:Visitor)
		WHERE (NOT $onlyNew OR coalesce(v.has_recommendation, false) = false)
		  AND (size($ids) = 0 OR v.badge_id IN $ids)
		RETURN v.badge_id AS badge_id
		ORDER BY badge_id`, map[string]any{
		"onlyNew": filter.OnlyNew,
		"ids":     stringList(filter.IDs),
	})
	if err != nil {
		return nil, fmt.Errorf("query visitor ids: %w", err)
	}

	ids = make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, getString(record, "badge_id"))
	}
	return ids, nil
}

// Visitor implements recommend.Store.
func (s *Store) Visitor(ctx context.Context, id string) (v *recommend.Visitor, err error) {
	defer observe("visitor", time.Now(), &err)

	records, err := s.read(ctx,
		"MATCH (v:Visitor {badge_id: $id}) RETURN properties(v) AS props",
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("query visitor %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", recommend.ErrVisitorNotFound, id)
	}

	visitor, err := recordVisitor(records[0])
	if err != nil {
		return nil, err
	}
	return &visitor, nil
}

// PastSessions implements recommend.Store.
func (s *Store) PastSessions(ctx context.Context, visitorID string) (sessions []recommend.PastSession, err error) {
	defer observe("past_sessions", time.Now(), &err)

	records, err := s.read(ctx, `
		MATCH (:Visitor {badge_id: $id})-[:ATTENDED]->(p:PastSession)
		WHERE p.embedding IS NOT NULL
		RETURN DISTINCT p.session_id AS session_id, p.title AS title,
		       p.stream AS stream, p.embedding AS embedding
		ORDER BY session_id`, map[string]any{"id": visitorID})
	if err != nil {
		return nil, fmt.Errorf("query past sessions: %w", err)
	}
	return pastSessions(records)
}

// ReturningVisitors implements recommend.Store.
func (s *Store) ReturningVisitors(ctx context.Context) (visitors []recommend.Visitor, err error) {
	defer observe("returning_visitors", time.Now(), &err)

	records, err := s.read(ctx, `
		MATCH (v:Visitor)
		WHERE v.attended_before = true
		  AND EXISTS { MATCH (v)-[:ATTENDED]->(p:PastSession) WHERE p.embedding IS NOT NULL }
		RETURN properties(v) AS props
		ORDER BY v.badge_id`, nil)
	if err != nil {
		return nil, fmt.Errorf("query returning visitors: %w", err)
	}

	visitors = make([]recommend.Visitor, 0, len(records))
	for _, record := range records {
		v, err := recordVisitor(record)
		if err != nil {
			return nil, err
		}
		visitors = append(visitors, v)
	}
	return visitors, nil
}

// CohortSessions implements recommend.Store.
func (s *Store) CohortSessions(ctx context.Context, visitorIDs []string) (sessions []recommend.PastSession, err error) {
	if len(visitorIDs) == 0 {
		return nil, nil
	}
	defer observe("cohort_sessions", time.Now(), &err)

	records, err := s.read(ctx, `
		MATCH (v:Visitor)-[:ATTENDED]->(p:PastSession)
		WHERE v.badge_id IN $ids AND p.embedding IS NOT NULL
		RETURN DISTINCT p.session_id AS session_id, p.title AS title,
		       p.stream AS stream, p.embedding AS embedding
		ORDER BY session_id`, map[string]any{"ids": stringList(visitorIDs)})
	if err != nil {
		return nil, fmt.Errorf("query cohort sessions: %w", err)
	}
	return pastSessions(records)
}

// Recommendations returns the visitor's current RECOMMENDED relationships,
// highest similarity first.
func (s *Store) Recommendations(ctx context.Context, visitorID string) (recs []recommend.Recommendation, err error) {
	defer observe("recommendations", time.Now(), &err)

	records, err := s.read(ctx, `
		MATCH (:Visitor {badge_id: $id})-[r:RECOMMENDED]->(s:Session)
		RETURN s.session_id AS session_id, r.similarity AS similarity, r.generated_at AS generated_at
		ORDER BY similarity DESC, session_id`, map[string]any{"id": visitorID})
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}

	recs = make([]recommend.Recommendation, 0, len(records))
	for _, record := range records {
		recs = append(recs, recommend.Recommendation{
			SessionID:   getString(record, "session_id"),
			Similarity:  getFloat64(record, "similarity"),
			GeneratedAt: getTime(record, "generated_at"),
		})
	}
	return recs, nil
}

// Flags returns the visitor's written-back flags.
func (s *Store) Flags(ctx context.Context, visitorID string) (recommend.VisitorFlags, error) {
	records, err := s.read(ctx, `
		MATCH (v:Visitor {badge_id: $id})
		RETURN coalesce(v.has_recommendation, false) AS has_recommendation,
		       coalesce(v.control_group, 0) AS control_group`, map[string]any{"id": visitorID})
	if err != nil {
		return recommend.VisitorFlags{}, fmt.Errorf("query flags: %w", err)
	}
	if len(records) == 0 {
		return recommend.VisitorFlags{}, fmt.Errorf("%w: %s", recommend.ErrVisitorNotFound, visitorID)
	}
	return recommend.VisitorFlags{
		HasRecommendation: getBool(records[0], "has_recommendation"),
		ControlGroup:      getInt(records[0], "control_group"),
	}, nil
}

func pastSessions(records []*neo4j.Record) ([]recommend.PastSession, error) {
	sessions := make([]recommend.PastSession, 0, len(records))
	for _, record := range records {
		ps := recommend.PastSession{
			ID:     getString(record, "session_id"),
			Title:  getString(record, "title"),
			Stream: getString(record, "stream"),
		}
		var err error
		if ps.Embedding, err = getVector(record, "embedding"); err != nil {
			return nil, fmt.Errorf("past session %s: %w", ps.ID, err)
		}
		sessions = append(sessions, ps)
	}
	return sessions, nil
}

// stringList converts ids to a parameter the driver always encodes as a
// list, including when empty.
func stringList(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
