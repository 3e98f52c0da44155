// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package export

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

const (
	groupTreatment = "treatment"
	groupControl   = "control"
)

// Document is the JSON export layout.
type Document struct {
	Metadata        Metadata                   `json:"metadata"`
	Recommendations map[string]VisitorDocument `json:"recommendations"`
	Statistics      recommend.RunStatistics    `json:"statistics"`
}

// Metadata describes the run that produced a document.
type Metadata struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	StartedAt   time.Time        `json:"started_at"`
	Group       string           `json:"group"`
	Visitors    int              `json:"visitors"`
	Config      recommend.Config `json:"configuration"`
}

// VisitorDocument is one visitor's entry.
type VisitorDocument struct {
	Visitor                 recommend.Visitor         `json:"visitor"`
	RawCandidates           []recommend.ScoredSession `json:"raw_candidates"`
	FilteredRecommendations []recommend.ScoredSession `json:"filtered_recommendations"`
	Metadata                VisitorMetadata           `json:"metadata"`
}

// VisitorMetadata traces how a visitor's list was produced.
type VisitorMetadata struct {
	Strategy        recommend.Strategy       `json:"strategy,omitempty"`
	Cohort          []recommend.CohortMember `json:"cohort,omitempty"`
	CohortRelaxed   bool                     `json:"cohort_relaxed"`
	CandidateCount  int                      `json:"candidate_count"`
	RawCount        int                      `json:"raw_count"`
	FilteredCount   int                      `json:"filtered_count"`
	RulesApplied    []string                 `json:"rules_applied"`
	DroppedOverlaps []string                 `json:"dropped_overlaps,omitempty"`
	ControlGroup    bool                     `json:"control_group"`
	CohortSkipped   []string                 `json:"cohort_skipped,omitempty"`
	CohortError     string                   `json:"cohort_error,omitempty"`
	ErrorKind       string                   `json:"error_kind,omitempty"`
	Error           string                   `json:"error,omitempty"`
	WriteError      string                   `json:"write_error,omitempty"`
}

func buildDocument(result *recommend.RunResult, group string, results []*recommend.VisitorResult, generatedAt time.Time) Document {
	stats := result.Stats
	if stats.FinishedAt.IsZero() {
		stats.FinishedAt = generatedAt
		stats.Duration = generatedAt.Sub(stats.StartedAt)
	}

	doc := Document{
		Metadata: Metadata{
			RunID:       stats.RunID,
			GeneratedAt: generatedAt,
			StartedAt:   stats.StartedAt,
			Group:       group,
			Visitors:    len(results),
			Config:      result.Config,
		},
		Recommendations: make(map[string]VisitorDocument, len(results)),
		Statistics:      stats,
	}

	for _, res := range results {
		doc.Recommendations[res.Visitor.ID] = VisitorDocument{
			Visitor:                 res.Visitor,
			RawCandidates:           nonNil(res.RawCandidates),
			FilteredRecommendations: nonNil(res.Recommendations),
			Metadata: VisitorMetadata{
				Strategy:        res.Strategy,
				Cohort:          res.Cohort,
				CohortRelaxed:   res.CohortRelaxed,
				CandidateCount:  res.CandidateCount,
				RawCount:        len(res.RawCandidates),
				FilteredCount:   len(res.Recommendations),
				RulesApplied:    nonNilStrings(res.RuleTrace),
				DroppedOverlaps: res.DroppedOverlaps,
				ControlGroup:    res.ControlGroup,
				CohortSkipped:   res.CohortSkipped,
				CohortError:     res.CohortError,
				ErrorKind:       res.ErrorKind,
				Error:           res.Error,
				WriteError:      res.WriteError,
			},
		}
	}
	return doc
}

func writeJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func nonNil(s []recommend.ScoredSession) []recommend.ScoredSession {
	if s == nil {
		return []recommend.ScoredSession{}
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
