// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package database is the embedded graph store backed by DuckDB.
//
// # Overview
//
// The visitor/session property graph is held as node tables (visitors,
// sessions, past_sessions) and edge tables (attended, recommended). DB
// implements recommend.Store, so the engine runs against a single local file
// with no server to operate.
//
// # Files
//
//   - database.go: connection lifecycle and pool configuration
//   - schema.go: table and index creation
//   - store.go: read queries used by the engine
//   - replace.go: transactional per-visitor relationship replacement
//   - import.go: dataset import
//   - vectors.go: FLOAT[] encoding and decoding
//
// # Concurrency
//
// All methods are safe for concurrent use. ReplaceRecommendations runs in its
// own transaction and retries DuckDB write-write conflicts, so either the old
// relationship set or the new one is visible, never a mix.
//
// # Testing
//
// Tests open ":memory:" databases:
//
//	db, err := database.New(&config.DuckDBConfig{Path: ":memory:"})
package database
