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

	"github.com/tomtom215/sessionrec/internal/dataset"
)

// importBatchSize bounds the rows sent per UNWIND statement.
const importBatchSize = 500

const (
	importPastSessionsQuery = `
		UNWIND $rows AS row
		MERGE (p:PastSession {session_id: row.session_id})
		SET p.title = row.title, p.stream = row.stream, p.cycle = row.cycle,
		    p.embedding = row.embedding`

	importSessionsQuery = `
		UNWIND $rows AS row
		MERGE (s:Session {session_id: row.session_id})
		SET s.title = row.title, s.stream = row.stream, s.venue = row.venue,
		    s.date = row.date, s.start_time = row.start_time, s.end_time = row.end_time,
		    s.sponsored = row.sponsored, s.sponsor_name = row.sponsor_name,
		    s.embedding = row.embedding`

	// Flags are only initialised on create so a re-import keeps the
	// previous run's write-back.
	importVisitorsQuery = `
		UNWIND $rows AS row
		MERGE (v:Visitor {badge_id: row.badge_id})
		ON CREATE SET v.has_recommendation = false, v.control_group = 0
		SET v += row.attributes
		SET v.job_role = row.job_role, v.practice_type = row.practice_type,
		    v.organisation_type = row.organisation_type, v.country = row.country,
		    v.job_title = row.job_title, v.attended_before = row.attended_before
		WITH v, row
		UNWIND row.attended AS sessionID
		MATCH (p:PastSession {session_id: sessionID})
		MERGE (v)-[:ATTENDED]->(p)`
)

// Import upserts a dataset in one write transaction. Existing visitors keep
// their has_recommendation and control_group values.
func (s *Store) Import(ctx context.Context, ds *dataset.Dataset) (stats dataset.Stats, err error) {
	defer observe("import", time.Now(), &err)

	pastRows := make([]any, len(ds.PastSessions))
	for i, p := range ds.PastSessions {
		pastRows[i] = map[string]any{
			"session_id": p.SessionID,
			"title":      p.Title,
			"stream":     p.Stream,
			"cycle":      p.Cycle,
			"embedding":  fromVector(p.Embedding),
		}
	}

	sessionRows := make([]any, len(ds.Sessions))
	for i, cs := range ds.Sessions {
		sessionRows[i] = map[string]any{
			"session_id":   cs.SessionID,
			"title":        cs.Title,
			"stream":       cs.Stream,
			"venue":        cs.Venue,
			"date":         cs.Date,
			"start_time":   cs.StartTime,
			"end_time":     cs.EndTime,
			"sponsored":    cs.Sponsored,
			"sponsor_name": cs.SponsorName,
			"embedding":    fromVector(cs.Embedding),
		}
	}

	visitorRows := make([]any, len(ds.Visitors))
	for i, v := range ds.Visitors {
		attrs, err := attributeProps(v.Attributes)
		if err != nil {
			return stats, fmt.Errorf("visitor %s: %w", v.BadgeID, err)
		}
		visitorRows[i] = map[string]any{
			"badge_id":          v.BadgeID,
			"job_role":          v.JobRole,
			"practice_type":     v.PracticeType,
			"organisation_type": v.OrganisationType,
			"country":           v.Country,
			"job_title":         v.JobTitle,
			"attended_before":   v.AttendedBefore,
			"attributes":        attrs,
			"attended":          stringList(v.Attended),
		}
	}

	err = s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Past sessions first so ATTENDED edges can match them.
		if err := runBatches(ctx, tx, importPastSessionsQuery, pastRows); err != nil {
			return nil, fmt.Errorf("import past sessions: %w", err)
		}
		if err := runBatches(ctx, tx, importSessionsQuery, sessionRows); err != nil {
			return nil, fmt.Errorf("import sessions: %w", err)
		}
		if err := runBatches(ctx, tx, importVisitorsQuery, visitorRows); err != nil {
			return nil, fmt.Errorf("import visitors: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return stats, err
	}

	stats = ds.Counts()
	s.logger.Info().
		Int("visitors", stats.Visitors).
		Int("sessions", stats.Sessions).
		Int("past_sessions", stats.PastSessions).
		Int("attendance", stats.Attendance).
		Msg("Dataset imported")
	return stats, nil
}

func runBatches(ctx context.Context, tx neo4j.ManagedTransaction, query string, rows []any) error {
	for start := 0; start < len(rows); start += importBatchSize {
		end := min(start+importBatchSize, len(rows))
		if err := runConsume(ctx, tx, query, map[string]any{"rows": rows[start:end]}); err != nil {
			return err
		}
	}
	return nil
}
