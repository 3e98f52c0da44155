// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/sessionrec/internal/logging"
	"github.com/tomtom215/sessionrec/internal/recommend"
)

// ReplaceRecommendations implements recommend.Store. The delete of existing
// current-cycle relationships, the flag update and the inserts share one
// transaction. Write-write conflicts with concurrent replacements are retried.
func (db *DB) ReplaceRecommendations(ctx context.Context, visitorID string, flags recommend.VisitorFlags, recs []recommend.Recommendation) (err error) {
	defer observe("replace_recommendations", time.Now(), &err)

	for attempt := 0; ; attempt++ {
		err = db.replaceOnce(ctx, visitorID, flags, recs)
		if err == nil || !isTransactionConflict(err) || attempt >= db.maxConflictRetries {
			return err
		}

		logging.Debug().Str("visitor_id", visitorID).Int("attempt", attempt+1).Msg("Transaction conflict, retrying replace")
		select {
		case <-time.After(db.conflictDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (db *DB) replaceOnce(ctx context.Context, visitorID string, flags recommend.VisitorFlags, recs []recommend.Recommendation) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE visitors SET has_recommendation = ?, control_group = ? WHERE badge_id = ?",
		flags.HasRecommendation, flags.ControlGroup, visitorID)
	if err != nil {
		return fmt.Errorf("update visitor flags: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", recommend.ErrVisitorNotFound, visitorID)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM recommended
		WHERE badge_id = ? AND session_id IN (SELECT session_id FROM sessions)`, visitorID); err != nil {
		return fmt.Errorf("delete recommendations: %w", err)
	}

	if len(recs) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO recommended (badge_id, session_id, similarity, generated_at) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer closeWithLog(stmt, "prepared statement")

		for _, r := range recs {
			if _, err := stmt.ExecContext(ctx, visitorID, r.SessionID, r.Similarity, r.GeneratedAt.UTC()); err != nil {
				return fmt.Errorf("insert recommendation %s: %w", r.SessionID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// isTransactionConflict checks if an error is a DuckDB transaction conflict
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "Conflict on tuple deletion")
}
