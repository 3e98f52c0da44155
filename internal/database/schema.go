// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range schemaQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// schemaQueries returns the node tables, the edge tables and their indexes.
//
// recommended carries no primary key: rows for a visitor are deleted and
// re-inserted inside one transaction, which DuckDB's eager unique checks
// reject on indexed keys.
func schemaQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS visitors (
			badge_id TEXT PRIMARY KEY,
			job_role TEXT,
			practice_type TEXT,
			organisation_type TEXT,
			country TEXT,
			job_title TEXT,
			attended_before BOOLEAN NOT NULL DEFAULT false,
			has_recommendation BOOLEAN NOT NULL DEFAULT false,
			control_group INTEGER NOT NULL DEFAULT 0,
			attributes TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			title TEXT,
			stream TEXT,
			venue TEXT,
			date TEXT,
			start_time TEXT,
			end_time TEXT,
			sponsored BOOLEAN NOT NULL DEFAULT false,
			sponsor_name TEXT,
			embedding FLOAT[]
		)`,

		`CREATE TABLE IF NOT EXISTS past_sessions (
			session_id TEXT PRIMARY KEY,
			title TEXT,
			stream TEXT,
			cycle TEXT,
			embedding FLOAT[]
		)`,

		`CREATE TABLE IF NOT EXISTS attended (
			badge_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			PRIMARY KEY (badge_id, session_id)
		)`,

		`CREATE TABLE IF NOT EXISTS recommended (
			badge_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			similarity DOUBLE NOT NULL,
			generated_at TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_attended_session ON attended(session_id)`,
	}
}
