// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package recommend implements the batch session-recommendation pipeline.
//
// # Pipeline
//
// One run processes every selected visitor of the event:
//
//   - Catalog: the current-cycle sessions and their embeddings are loaded once
//     and shared read-only by all workers.
//   - Candidates: returning visitors contribute their own past sessions. First
//     time visitors borrow the past sessions of a small cohort of similar
//     returning visitors.
//   - Scoring: every candidate past session is compared with every catalog
//     session by cosine similarity. Pairs under the minimum score are dropped
//     and each catalog session keeps its best score.
//   - Rules: practice-type and job-role rules narrow the scored list in a
//     configurable order.
//   - Selection: the highest scoring non-overlapping sessions are kept, up to
//     the per-visitor limit.
//   - Guardrails: the aggregate payload is checked for over-limit and
//     overlapping recommendations. Findings are reported, never corrected.
//   - Control group: a seeded split withholds a fixed share of visitors from
//     the primary outputs.
//   - Output: JSON/CSV exports and a per-visitor replace of RECOMMENDED
//     relationships in the graph store.
//
// # Determinism
//
// Given the same store contents, embeddings, configuration and control-group
// seed, two runs produce the same recommendation sets. Every ordering in the
// pipeline has an explicit tie-break on session or visitor id.
//
// # Dependencies
//
// The package has no dependencies on other internal packages. The Store,
// Embedder, RuleFilter and Exporter interfaces are implemented by the
// database, neo4jstore, embedding and export packages.
//
// # Usage
//
//	cfg := recommend.DefaultConfig()
//	engine, err := recommend.NewEngine(cfg, store, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	engine.SetExporter(exporter)
//	result, err := engine.Run(ctx)
//	// result.Stats is populated even when err != nil
package recommend
