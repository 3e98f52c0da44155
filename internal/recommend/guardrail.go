// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"sort"

	"github.com/rs/zerolog"
)

// maxDetailedViolations bounds the per-category detail kept in the report
// and the log. Aggregate counts are never truncated.
const maxDetailedViolations = 20

// OverLimitViolation is a visitor with more recommendations than allowed.
type OverLimitViolation struct {
	VisitorID string `json:"visitor_id"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
}

// OverlapPair is two recommended sessions sharing time on the same date.
type OverlapPair struct {
	SessionA string `json:"session_a"`
	SessionB string `json:"session_b"`
	Date     string `json:"date"`
}

// OverlapViolation is a visitor with overlapping recommendations.
type OverlapViolation struct {
	VisitorID string        `json:"visitor_id"`
	Pairs     int           `json:"pairs"`
	Details   []OverlapPair `json:"details"`
}

// GuardrailReport is the outcome of a guardrail pass.
type GuardrailReport struct {
	VisitorsChecked int `json:"visitors_checked"`

	OverLimitVisitors int                  `json:"over_limit_visitors"`
	OverLimit         []OverLimitViolation `json:"over_limit"`

	OverlapVisitors int                `json:"overlap_visitors"`
	OverlapPairs    int                `json:"overlap_pairs"`
	Overlaps        []OverlapViolation `json:"overlaps"`

	// Truncated is set when either detail list hit its cap.
	Truncated bool `json:"truncated"`
}

// Violations returns the number of visitors with any finding.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (r GuardrailReport) Violations() int {
	return r.OverLimitVisitors + r.OverlapVisitors
}

// OverlapIndex maps visitor id to session id to the ids of the other
// recommended sessions it overlaps.
type OverlapIndex map[string]map[string][]string

// For returns the sessions overlapping sessionID in the visitor's list.
func (idx OverlapIndex) For(visitorID, sessionID string) []string {
	if idx == nil {
		return nil
	}
	return idx[visitorID][sessionID]
}

// CheckGuardrails validates the complete payload. It reads results and never
// modifies them.
func CheckGuardrails(results map[string]*VisitorResult, limit int) (GuardrailReport, OverlapIndex) {
	report := GuardrailReport{
		OverLimit: []OverLimitViolation{},
		Overlaps:  []OverlapViolation{},
	}
	index := make(OverlapIndex)

	for _, id := range sortedKeys(results) {
		res := results[id]
		if res.Failed() {
			continue
		}
		report.VisitorsChecked++

		if n := len(res.Recommendations); n > limit {
			report.OverLimitVisitors++
			if len(report.OverLimit) < maxDetailedViolations {
				report.OverLimit = append(report.OverLimit, OverLimitViolation{VisitorID: id, Count: n, Limit: limit})
			} else {
				report.Truncated = true
			}
		}

		pairs := overlappingPairs(res.Recommendations)
		if len(pairs) == 0 {
			continue
		}
		report.OverlapVisitors++
		report.OverlapPairs += len(pairs)
		if len(report.Overlaps) < maxDetailedViolations {
			report.Overlaps = append(report.Overlaps, OverlapViolation{VisitorID: id, Pairs: len(pairs), Details: pairs})
		} else {
			report.Truncated = true
		}

		perSession := make(map[string][]string)
		for _, p := range pairs {
			perSession[p.SessionA] = append(perSession[p.SessionA], p.SessionB)
			perSession[p.SessionB] = append(perSession[p.SessionB], p.SessionA)
		}
		index[id] = perSession
	}

	return report, index
}

func overlappingPairs(recs []ScoredSession) []OverlapPair {
	type entry struct {
		id string
		w  window
	}
	entries := make([]entry, 0, len(recs))
	for i := range recs {
		if w, ok := sessionWindow(&recs[i].CatalogSession); ok {
			entries = append(entries, entry{id: recs[i].ID, w: w})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	var pairs []OverlapPair
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[i].w.overlaps(entries[j].w) {
				pairs = append(pairs, OverlapPair{
					SessionA: entries[i].id,
					SessionB: entries[j].id,
					Date:     entries[i].w.date,
				})
			}
		}
	}
	return pairs
}

// LogGuardrails writes the report's findings at warn level.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func LogGuardrails(logger zerolog.Logger, report *GuardrailReport) {
	if report.Violations() == 0 {
		logger.Info().Int("visitors_checked", report.VisitorsChecked).Msg("guardrails passed")
		return
	}

	for _, v := range report.OverLimit {
		logger.Warn().
			Str("visitor_id", v.VisitorID).
			Int("count", v.Count).
			Int("limit", v.Limit).
			Msg("guardrail: recommendations over limit")
	}
	for _, v := range report.Overlaps {
		logger.Warn().
			Str("visitor_id", v.VisitorID).
			Int("pairs", v.Pairs).
			Msg("guardrail: overlapping recommendations")
	}
	logger.Warn().
		Int("over_limit_visitors", report.OverLimitVisitors).
		Int("overlap_visitors", report.OverlapVisitors).
		Int("overlap_pairs", report.OverlapPairs).
		Bool("truncated", report.Truncated).
		Msg("guardrail violations found")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
