// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"time"
)

// Visitor is a registered visitor of the current event cycle.
type Visitor struct {
	// ID is the badge id, unique per cycle.
	ID string `json:"badge_id"`

	JobRole          string `json:"job_role"`
	PracticeType     string `json:"practice_type"`
	OrganisationType string `json:"organisation_type"`
	Country          string `json:"country"`
	JobTitle         string `json:"job_title"`

	// AttendedBefore selects the own-history strategy when true.
	AttendedBefore bool `json:"attended_before"`

	// HasRecommendation is the flag written back by the previous run.
	HasRecommendation bool `json:"has_recommendation"`

	// Attributes carries any other stored properties through to the export.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// PastSession is a prior-cycle session a visitor attended.
type PastSession struct {
	ID        string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	Stream    string    `json:"stream,omitempty"`
	Embedding []float32 `json:"-"`
}

// CatalogSession is a session of the current cycle.
type CatalogSession struct {
	ID     string `json:"session_id"`
	Title  string `json:"title"`
	Stream string `json:"stream"`
	Venue  string `json:"venue"`

	// Date is YYYY-MM-DD. StartTime and EndTime are HH:MM or HH:MM:SS.
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	Sponsored   bool   `json:"sponsored"`
	SponsorName string `json:"sponsor_name,omitempty"`

	Embedding []float32 `json:"-"`
}

// ScoredSession is a catalog session with its best similarity to any
// candidate past session.
type ScoredSession struct {
	CatalogSession

	Similarity float64 `json:"similarity"`

	// MatchedPastSession is the candidate that produced Similarity.
	MatchedPastSession string `json:"matched_past_session"`
}

// Strategy identifies how candidates were generated for a visitor.
type Strategy string

const (
	StrategyOwnHistory Strategy = "own_history"
	StrategyCohort     Strategy = "cohort"
)

// CohortMember is a returning visitor selected as similar to a new visitor.
type CohortMember struct {
	VisitorID        string  `json:"visitor_id"`
	CategoricalScore float64 `json:"categorical_score"`
	EmbeddingScore   float64 `json:"embedding_score"`
	Score            float64 `json:"score"`
}

// VisitorResult is everything computed for one visitor in a run.
type VisitorResult struct {
	Visitor Visitor `json:"visitor"`

	Strategy       Strategy       `json:"strategy,omitempty"`
	Cohort         []CohortMember `json:"cohort,omitempty"`
	CohortRelaxed  bool           `json:"cohort_relaxed,omitempty"`
	CandidateCount int            `json:"candidate_count"`

	// RawCandidates is the deduplicated scored list before rules.
	RawCandidates []ScoredSession `json:"raw_candidates"`

	// Recommendations is the final list after rules and selection.
	Recommendations []ScoredSession `json:"filtered_recommendations"`

	RuleTrace       []string `json:"rules_applied"`
	DroppedOverlaps []string `json:"dropped_overlaps,omitempty"`
	ControlGroup    bool     `json:"control_group"`

	// CohortErr records a cohort discovery that degraded to no cohort. The
	// visitor still counts as processed.
	CohortErr     error    `json:"-"`
	CohortError   string   `json:"cohort_error,omitempty"`
	CohortSkipped []string `json:"cohort_skipped,omitempty"`

	Err       error  `json:"-"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	// WriteErr is set when the visitor's relationships could not be
	// persisted after all retries.
	WriteErr   error  `json:"-"`
	WriteError string `json:"write_error,omitempty"`
}

// Failed reports whether the visitor could not be processed.
func (r *VisitorResult) Failed() bool {
	return r.Err != nil
}

// RunStatistics summarises a run. It is populated even when the run fails.
type RunStatistics struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`

	CatalogSessions int `json:"catalog_sessions"`

	VisitorsProcessed              int `json:"visitors_processed"`
	VisitorsWithRecommendations    int `json:"visitors_with_recommendations"`
	VisitorsWithoutRecommendations int `json:"visitors_without_recommendations"`
	TotalRecommendations           int `json:"total_recommendations"`
	UniqueSessionsRecommended      int `json:"unique_recommended_sessions"`

	OwnHistoryVisitors int `json:"own_history_visitors"`
	CohortVisitors     int `json:"cohort_visitors"`
	CohortRelaxed      int `json:"cohort_relaxed"`

	// Errors counts visitors that could not be processed, so
	// VisitorsProcessed = with + without recommendations + Errors.
	// ErrorsByKind also counts errors that degraded a visitor without
	// failing it: profile embedding failures during cohort discovery and
	// permanent graph-write failures.
	Errors            int            `json:"errors"`
	ErrorsByKind      map[string]int `json:"errors_by_kind"`
	EmbeddingFailures int            `json:"embedding_failures"`

	ControlVisitors   int `json:"control_visitors"`
	TreatmentVisitors int `json:"treatment_visitors"`

	Guardrail GuardrailReport `json:"guardrail"`

	GraphWrites        int `json:"graph_writes"`
	GraphWriteFailures int `json:"graph_write_failures"`

	ExportedFiles []string `json:"exported_files,omitempty"`

	// Fatal holds the error that aborted the run, if any.
	Fatal string `json:"fatal,omitempty"`
}

// RunResult is the outcome of Engine.Run.
type RunResult struct {
	Stats   RunStatistics             `json:"statistics"`
	Config  Config                    `json:"config"`
	Results map[string]*VisitorResult `json:"recommendations"`

	// Assignment maps visitor id to 1 (control) or 0 (treatment).
	Assignment map[string]int `json:"-"`
}

// Treatment returns the results of visitors outside the control group,
// ordered by visitor id.
func (r *RunResult) Treatment() []*VisitorResult {
	return r.partition(false)
}

// Control returns the results of control-group visitors, ordered by visitor id.
func (r *RunResult) Control() []*VisitorResult {
	return r.partition(true)
}

func (r *RunResult) partition(control bool) []*VisitorResult {
	out := make([]*VisitorResult, 0, len(r.Results))
	for _, id := range sortedKeys(r.Results) {
		if res := r.Results[id]; res.ControlGroup == control {
			out = append(out, res)
		}
	}
	return out
}

// VisitorFilter selects the visitors a run processes.
type VisitorFilter struct {
	// OnlyNew skips visitors whose has_recommendation flag is already set.
	OnlyNew bool `json:"only_new"`

	// IDs restricts the run to the listed badge ids when non-empty.
	IDs []string `json:"ids,omitempty"`

	// Limit caps the number of visitors when positive.
	Limit int `json:"limit,omitempty"`
}

// VisitorFlags are the properties written back to a visitor node.
type VisitorFlags struct {
	HasRecommendation bool
	ControlGroup      int
}

// Recommendation is one RECOMMENDED relationship to materialize.
type Recommendation struct {
	SessionID   string
	Similarity  float64
	GeneratedAt time.Time
}

// Store is the graph-store boundary. Implementations must be safe for
// concurrent use.
type Store interface {
	// CatalogSessions returns all current-cycle sessions.
	CatalogSessions(ctx context.Context) ([]CatalogSession, error)

	// VisitorIDs returns the badge ids selected by filter, sorted ascending.
	VisitorIDs(ctx context.Context, filter VisitorFilter) ([]string, error)

	// Visitor returns one visitor or an error wrapping ErrVisitorNotFound.
	Visitor(ctx context.Context, id string) (*Visitor, error)

	// PastSessions returns the past sessions the visitor attended, across
	// all tracked prior cycles, that carry an embedding.
	PastSessions(ctx context.Context, visitorID string) ([]PastSession, error)

	// ReturningVisitors returns returning visitors with at least one
	// attended past session.
	ReturningVisitors(ctx context.Context) ([]Visitor, error)

	// CohortSessions returns the distinct past sessions attended by any of
	// the given visitors.
	CohortSessions(ctx context.Context, visitorIDs []string) ([]PastSession, error)

	// ReplaceRecommendations atomically removes the visitor's existing
	// RECOMMENDED relationships to current-cycle sessions, writes flags and
	// creates recs.
	ReplaceRecommendations(ctx context.Context, visitorID string, flags VisitorFlags, recs []Recommendation) error
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Exporter writes run results to files.
type Exporter interface {
	Export(ctx context.Context, result *RunResult, overlaps OverlapIndex) ([]string, error)
}
