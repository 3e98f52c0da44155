// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/sessionrec/internal/dataset"
	"github.com/tomtom215/sessionrec/internal/logging"
)

// Import upserts a dataset in one transaction. Existing visitors keep their
// has_recommendation and control_group values.
func (db *DB) Import(ctx context.Context, ds *dataset.Dataset) (stats dataset.Stats, err error) {
	defer observe("import", time.Now(), &err)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = importPastSessions(ctx, tx, ds.PastSessions); err != nil {
		return stats, err
	}
	if err = importSessions(ctx, tx, ds.Sessions); err != nil {
		return stats, err
	}
	if err = importVisitors(ctx, tx, ds.Visitors); err != nil {
		return stats, err
	}
	if err = tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit import: %w", err)
	}

	stats = ds.Counts()
	logging.Info().
		Int("visitors", stats.Visitors).
		Int("sessions", stats.Sessions).
		Int("past_sessions", stats.PastSessions).
		Int("attendance", stats.Attendance).
		Msg("Dataset imported")
	return stats, nil
}

func importPastSessions(ctx context.Context, tx *sql.Tx, sessions []dataset.PastSession) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO past_sessions (session_id, title, stream, cycle, embedding)
		VALUES (?, ?, ?, ?, CAST(? AS FLOAT[]))
		ON CONFLICT (session_id) DO UPDATE SET
			title = excluded.title, stream = excluded.stream,
			cycle = excluded.cycle, embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare past session insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for _, s := range sessions {
		vec, err := encodeVector(s.Embedding)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, s.SessionID, s.Title, s.Stream, s.Cycle, vec); err != nil {
			return fmt.Errorf("insert past session %s: %w", s.SessionID, err)
		}
	}
	return nil
}

func importSessions(ctx context.Context, tx *sql.Tx, sessions []dataset.CatalogSession) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sessions (session_id, title, stream, venue, date, start_time, end_time, sponsored, sponsor_name, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CAST(? AS FLOAT[]))
		ON CONFLICT (session_id) DO UPDATE SET
			title = excluded.title, stream = excluded.stream, venue = excluded.venue,
			date = excluded.date, start_time = excluded.start_time, end_time = excluded.end_time,
			sponsored = excluded.sponsored, sponsor_name = excluded.sponsor_name,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare session insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for _, s := range sessions {
		vec, err := encodeVector(s.Embedding)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, s.SessionID, s.Title, s.Stream, s.Venue, s.Date,
			s.StartTime, s.EndTime, s.Sponsored, s.SponsorName, vec); err != nil {
			return fmt.Errorf("insert session %s: %w", s.SessionID, err)
		}
	}
	return nil
}

func importVisitors(ctx context.Context, tx *sql.Tx, visitors []dataset.Visitor) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO visitors (badge_id, job_role, practice_type, organisation_type, country, job_title, attended_before, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (badge_id) DO UPDATE SET
			job_role = excluded.job_role, practice_type = excluded.practice_type,
			organisation_type = excluded.organisation_type, country = excluded.country,
			job_title = excluded.job_title, attended_before = excluded.attended_before,
			attributes = excluded.attributes`)
	if err != nil {
		return fmt.Errorf("prepare visitor insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	attend, err := tx.PrepareContext(ctx,
		"INSERT INTO attended (badge_id, session_id) VALUES (?, ?) ON CONFLICT DO NOTHING")
	if err != nil {
		return fmt.Errorf("prepare attendance insert: %w", err)
	}
	defer closeWithLog(attend, "prepared statement")

	for _, v := range visitors {
		attrs, err := encodeAttributes(v.Attributes)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, v.BadgeID, v.JobRole, v.PracticeType, v.OrganisationType,
			v.Country, v.JobTitle, v.AttendedBefore, attrs); err != nil {
			return fmt.Errorf("insert visitor %s: %w", v.BadgeID, err)
		}
		for _, sessionID := range v.Attended {
			if _, err := attend.ExecContext(ctx, v.BadgeID, sessionID); err != nil {
				return fmt.Errorf("insert attendance %s -> %s: %w", v.BadgeID, sessionID, err)
			}
		}
	}
	return nil
}
