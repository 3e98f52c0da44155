// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/sessionrec/internal/metrics"
	"github.com/tomtom215/sessionrec/internal/recommend"
)

const visitorColumns = `badge_id, COALESCE(job_role, ''), COALESCE(practice_type, ''),
	COALESCE(organisation_type, ''), COALESCE(country, ''), COALESCE(job_title, ''),
	attended_before, has_recommendation, attributes`

// CatalogSessions implements recommend.Store.
func (db *DB) CatalogSessions(ctx context.Context) (sessions []recommend.CatalogSession, err error) {
	defer observe("catalog_sessions", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, COALESCE(title, ''), COALESCE(stream, ''), COALESCE(venue, ''),
			COALESCE(date, ''), COALESCE(start_time, ''), COALESCE(end_time, ''),
			sponsored, COALESCE(sponsor_name, ''), embedding
		FROM sessions
		ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var s recommend.CatalogSession
		var embedding any
		if err := rows.Scan(&s.ID, &s.Title, &s.Stream, &s.Venue, &s.Date, &s.StartTime, &s.EndTime,
			&s.Sponsored, &s.SponsorName, &embedding); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if s.Embedding, err = decodeVector(embedding); err != nil {
			return nil, fmt.Errorf("session %s: %w", s.ID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// VisitorIDs implements recommend.Store. filter.Limit is applied by the engine.
func (db *DB) VisitorIDs(ctx context.Context, filter recommend.VisitorFilter) (ids []string, err error) {
	defer observe("visitor_ids", time.Now(), &err)

	var where []string
	var args []any
	if filter.OnlyNew {
		where = append(where, "NOT has_recommendation")
	}
	if len(filter.IDs) > 0 {
		where = append(where, "badge_id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	query := "SELECT badge_id FROM visitors"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY badge_id"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query visitor ids: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan visitor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Visitor implements recommend.Store.
func (db *DB) Visitor(ctx context.Context, id string) (v *recommend.Visitor, err error) {
	defer observe("visitor", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx, "SELECT "+visitorColumns+" FROM visitors WHERE badge_id = ?", id)
	v, err = scanVisitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", recommend.ErrVisitorNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query visitor %s: %w", id, err)
	}
	return v, nil
}

// PastSessions implements recommend.Store.
func (db *DB) PastSessions(ctx context.Context, visitorID string) (sessions []recommend.PastSession, err error) {
	defer observe("past_sessions", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT p.session_id, COALESCE(p.title, ''), COALESCE(p.stream, ''), p.embedding
		FROM attended a
		JOIN past_sessions p ON p.session_id = a.session_id
		WHERE a.badge_id = ? AND p.embedding IS NOT NULL
		ORDER BY p.session_id`, visitorID)
	if err != nil {
		return nil, fmt.Errorf("query past sessions: %w", err)
	}
	return scanPastSessions(rows)
}

// ReturningVisitors implements recommend.Store.
func (db *DB) ReturningVisitors(ctx context.Context) (visitors []recommend.Visitor, err error) {
	defer observe("returning_visitors", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+visitorColumns+`
		FROM visitors v
		WHERE v.attended_before
			AND EXISTS (
				SELECT 1 FROM attended a
				JOIN past_sessions p ON p.session_id = a.session_id
				WHERE a.badge_id = v.badge_id AND p.embedding IS NOT NULL
			)
		ORDER BY v.badge_id`)
	if err != nil {
		return nil, fmt.Errorf("query returning visitors: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan returning visitor: %w", err)
		}
		visitors = append(visitors, *v)
	}
	return visitors, rows.Err()
}

// CohortSessions implements recommend.Store.
func (db *DB) CohortSessions(ctx context.Context, visitorIDs []string) (sessions []recommend.PastSession, err error) {
	if len(visitorIDs) == 0 {
		return nil, nil
	}
	defer observe("cohort_sessions", time.Now(), &err)

	args := make([]any, len(visitorIDs))
	for i, id := range visitorIDs {
		args[i] = id
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT p.session_id, COALESCE(p.title, ''), COALESCE(p.stream, ''), p.embedding
		FROM past_sessions p
		WHERE p.embedding IS NOT NULL
			AND p.session_id IN (SELECT session_id FROM attended WHERE badge_id IN (`+placeholders(len(args))+`))
		ORDER BY p.session_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query cohort sessions: %w", err)
	}
	return scanPastSessions(rows)
}

// Recommendations returns the visitor's current RECOMMENDED relationships,
// highest similarity first.
func (db *DB) Recommendations(ctx context.Context, visitorID string) (recs []recommend.Recommendation, err error) {
	defer observe("recommendations", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT session_id, similarity, generated_at
		FROM recommended
		WHERE badge_id = ?
		ORDER BY similarity DESC, session_id`, visitorID)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var r recommend.Recommendation
		if err := rows.Scan(&r.SessionID, &r.Similarity, &r.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Flags returns the visitor's written-back flags.
func (db *DB) Flags(ctx context.Context, visitorID string) (recommend.VisitorFlags, error) {
	var f recommend.VisitorFlags
	err := db.conn.QueryRowContext(ctx,
		"SELECT has_recommendation, control_group FROM visitors WHERE badge_id = ?", visitorID,
	).Scan(&f.HasRecommendation, &f.ControlGroup)
	if errors.Is(err, sql.ErrNoRows) {
		return f, fmt.Errorf("%w: %s", recommend.ErrVisitorNotFound, visitorID)
	}
	return f, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVisitor(row rowScanner) (*recommend.Visitor, error) {
	var v recommend.Visitor
	var attrs sql.NullString
	if err := row.Scan(&v.ID, &v.JobRole, &v.PracticeType, &v.OrganisationType, &v.Country, &v.JobTitle,
		&v.AttendedBefore, &v.HasRecommendation, &attrs); err != nil {
		return nil, err
	}
	var err error
	if v.Attributes, err = decodeAttributes(attrs); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanPastSessions(rows *sql.Rows) ([]recommend.PastSession, error) {
	defer closeWithLog(rows, "rows")

	var sessions []recommend.PastSession
	for rows.Next() {
		var s recommend.PastSession
		var embedding any
		if err := rows.Scan(&s.ID, &s.Title, &s.Stream, &embedding); err != nil {
			return nil, fmt.Errorf("scan past session: %w", err)
		}
		var err error
		if s.Embedding, err = decodeVector(embedding); err != nil {
			return nil, fmt.Errorf("past session %s: %w", s.ID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func observe(operation string, start time.Time, err *error) {
	metrics.RecordStoreQuery(backend, operation, time.Since(start), *err)
}
