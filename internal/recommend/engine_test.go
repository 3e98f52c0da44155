// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testCatalog() []CatalogSession {
	return []CatalogSession{
		{ID: "S1", Stream: "Nursing", Date: "2026-03-12", StartTime: "09:00", EndTime: "10:00", Embedding: unitVec(0.9)},
		{ID: "S2", Stream: "Small Animal Surgery", Date: "2026-03-12", StartTime: "11:00", EndTime: "12:00", Embedding: unitVec(0.85)},
		{ID: "S3", Stream: "Practice Management", Date: "2026-03-12", StartTime: "13:00", EndTime: "14:00", Embedding: unitVec(0.81)},
		{ID: "S7", Stream: "Equine", Date: "2026-03-12", StartTime: "15:00", EndTime: "16:00", Embedding: unitVec(0.25)},
	}
}

func scenarioStore() *memStore {
	store := cohortStore()
	store.catalog = testCatalog()
	store.addVisitor(Visitor{ID: "V1", JobRole: "Practice Manager", PracticeType: "NA", AttendedBefore: true},
		PastSession{ID: "P1", Embedding: []float32{1, 0}})
	store.addVisitor(Visitor{ID: "N1", JobRole: "Vet Nurse", PracticeType: "Small Animal", Country: "UK"})
	return store
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.Write.RetryDelay = time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, cfg *Config, store Store, embedder Embedder) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, store, embedder, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(nil, newMemStore(), nil, zerolog.Nop()); err != nil {
		t.Errorf("NewEngine(nil config) error = %v", err)
	}
	if _, err := NewEngine(DefaultConfig(), nil, nil, zerolog.Nop()); err == nil {
		t.Error("NewEngine(nil store) should fail")
	}
	bad := DefaultConfig()
	bad.MaxRecommendations = 0
	if _, err := NewEngine(bad, newMemStore(), nil, zerolog.Nop()); err == nil {
		t.Error("NewEngine(invalid config) should fail")
	}
}

func TestEngine_Run_OwnHistoryScenario(t *testing.T) {
	t.Parallel()

	store := scenarioStore()
	result, err := newTestEngine(t, testConfig(), store, &letterEmbedder{}).Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := result.Results["V1"]
	if res == nil || res.Failed() {
		t.Fatalf("V1 result = %+v", res)
	}
	if res.Strategy != StrategyOwnHistory {
		t.Errorf("Strategy = %s, want own_history", res.Strategy)
	}
	got := ids(res.Recommendations)
	if !slices.Contains(got, "S3") {
		t.Errorf("recommendations = %v, want S3", got)
	}
	if slices.Contains(got, "S7") {
		t.Errorf("recommendations = %v, S7 is below min score", got)
	}
	for _, r := range res.Recommendations {
		if r.ID == "S3" && math.Abs(r.Similarity-0.81) > 1e-4 {
			t.Errorf("S3 similarity = %f, want 0.81", r.Similarity)
		}
	}

	w, ok := store.written("V1")
	if !ok || !w.flags.HasRecommendation || len(w.recs) != len(got) {
		t.Errorf("V1 write = %+v, want %d relationships", w, len(got))
	}
}

func TestEngine_Run_CohortNurseScenario(t *testing.T) {
	t.Parallel()

	store := scenarioStore()
	result, err := newTestEngine(t, testConfig(), store, &letterEmbedder{}).Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := result.Results["N1"]
	if res.Strategy != StrategyCohort || len(res.Cohort) == 0 {
		t.Fatalf("N1 strategy = %s, cohort = %v", res.Strategy, res.Cohort)
	}
	if got := ids(res.Recommendations); !slices.Equal(got, []string{"S1"}) {
		t.Errorf("N1 recommendations = %v, want [S1]", got)
	}
	if len(res.RawCandidates) <= 1 {
		t.Errorf("raw candidates = %v, want more than the filtered list", ids(res.RawCandidates))
	}
	if len(res.RuleTrace) == 0 {
		t.Error("rule trace is empty")
	}
}

func TestEngine_Run_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ControlGroup = ControlGroupConfig{Enabled: true, Percentage: 0.3, Seed: 11}

	run := func() *RunResult {
		result, err := newTestEngine(t, cfg, scenarioStore(), &letterEmbedder{}).Run(t.Context())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return result
	}
	a, b := run(), run()

	if len(a.Results) != len(b.Results) {
		t.Fatalf("result sizes differ: %d vs %d", len(a.Results), len(b.Results))
	}
	for id, ra := range a.Results {
		rb := b.Results[id]
		if !slices.Equal(ids(ra.Recommendations), ids(rb.Recommendations)) || ra.ControlGroup != rb.ControlGroup {
			t.Errorf("visitor %s differs between runs", id)
		}
		for i := range ra.Recommendations {
			if ra.Recommendations[i].Similarity != rb.Recommendations[i].Similarity {
				t.Errorf("visitor %s: score %d differs", id, i)
			}
		}
	}
}

func TestEngine_Run_ReplacesRelationships(t *testing.T) {
	t.Parallel()

	store := scenarioStore()
	engine := newTestEngine(t, testConfig(), store, &letterEmbedder{})

	if _, err := engine.Run(t.Context()); err != nil {
		t.Fatal(err)
	}
	first, _ := store.written("V1")

	// Second cycle: only S3 is still similar enough.
	store.mu.Lock()
	store.catalog = []CatalogSession{
		{ID: "S3", Stream: "Practice Management", Embedding: unitVec(0.81)},
		{ID: "S9", Stream: "Practice Management", Embedding: unitVec(0.1)},
	}
	store.mu.Unlock()

	if _, err := engine.Run(t.Context()); err != nil {
		t.Fatal(err)
	}
	second, _ := store.written("V1")

	if len(first.recs) != 3 {
		t.Fatalf("first run wrote %d relationships, want 3", len(first.recs))
	}
	if len(second.recs) != 1 || second.recs[0].SessionID != "S3" {
		t.Errorf("second run wrote %+v, want only S3", second.recs)
	}
}

func TestEngine_Run_VisitorNotFoundIsCounted(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Visitors.IDs = []string{"V1", "GHOST"}

	result, err := newTestEngine(t, cfg, scenarioStore(), nil).Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stats.Errors != 1 || result.Stats.ErrorsByKind[KindVisitorNotFound] != 1 {
		t.Errorf("errors = %d %v, want one visitor_not_found", result.Stats.Errors, result.Stats.ErrorsByKind)
	}
	if result.Stats.VisitorsWithRecommendations != 1 {
		t.Errorf("VisitorsWithRecommendations = %d, want 1", result.Stats.VisitorsWithRecommendations)
	}
}

func TestEngine_Run_CatalogUnavailableIsFatal(t *testing.T) {
	t.Parallel()

	store := scenarioStore()
	store.catalog = []CatalogSession{{ID: "S1"}}

	result, err := newTestEngine(t, testConfig(), store, nil).Run(t.Context())
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("Run() error = %v, want ErrCatalogUnavailable", err)
	}
	if result == nil || result.Stats.Fatal == "" || result.Stats.FinishedAt.IsZero() {
		t.Errorf("statistics not populated on failure: %+v", result)
	}
	if result.Stats.VisitorsProcessed != 0 || len(store.writes) != 0 {
		t.Error("no visitor work should happen after a fatal catalog error")
	}
}

func TestEngine_Run_EmbeddingFailureDegrades(t *testing.T) {
	t.Parallel()

	store := scenarioStore()
	result, err := newTestEngine(t, testConfig(), store, &letterEmbedder{err: errors.New("timeout")}).Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := result.Results["N1"]
	if res.Failed() || len(res.Recommendations) != 0 {
		t.Errorf("N1 = %+v, want no recommendations and no failure", res)
	}
	w, ok := store.written("N1")
	if !ok || w.flags.HasRecommendation || len(w.recs) != 0 {
		t.Errorf("N1 write = %+v, want flags only", w)
	}
	if len(result.Results["V1"].Recommendations) == 0 {
		t.Error("V1 should be unaffected by embedding failures")
	}
	if !errors.Is(res.CohortErr, ErrEmbeddingService) || res.CohortError == "" {
		t.Errorf("N1 cohort error = %v, want ErrEmbeddingService recorded", res.CohortErr)
	}
	stats := result.Stats
	if stats.EmbeddingFailures != 1 || stats.ErrorsByKind[KindEmbedding] != 1 {
		t.Errorf("embedding failures = %d, by kind %v, want 1", stats.EmbeddingFailures, stats.ErrorsByKind)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, a degraded cohort must not fail the visitor", stats.Errors)
	}
}

func TestEngine_Run_UnembeddableCohortMemberIsCounted(t *testing.T) {
	t.Parallel()

	// R2 is one of N1's three matched returning visitors.
	result, err := newTestEngine(t, testConfig(), scenarioStore(), &letterEmbedder{failOn: "surgeon"}).Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := result.Results["N1"]
	if res.Failed() || res.CohortErr != nil {
		t.Fatalf("N1 = %+v, want processed without a cohort error", res)
	}
	if !slices.Equal(res.CohortSkipped, []string{"R2"}) {
		t.Errorf("CohortSkipped = %v, want [R2]", res.CohortSkipped)
	}
	if got := cohortIDs(res.Cohort); len(got) != 2 || slices.Contains(got, "R2") {
		t.Errorf("cohort = %v, want R1 and R3", got)
	}
	if result.Stats.EmbeddingFailures != 1 || result.Stats.ErrorsByKind[KindEmbedding] != 1 {
		t.Errorf("embedding failures = %d, by kind %v, want 1", result.Stats.EmbeddingFailures, result.Stats.ErrorsByKind)
	}
}

func TestEngine_Run_GraphWriteRetries(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Write.Retries = 2

	store := scenarioStore()
	store.failWrites["V1"] = 2  // succeeds on the third attempt
	store.failWrites["N1"] = 10 // never succeeds

	result, err := newTestEngine(t, cfg, store, &letterEmbedder{}).Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, ok := store.written("V1"); !ok || store.attempts["V1"] != 3 {
		t.Errorf("V1 attempts = %d, want success on attempt 3", store.attempts["V1"])
	}
	if store.attempts["N1"] != 3 {
		t.Errorf("N1 attempts = %d, want 3", store.attempts["N1"])
	}
	res := result.Results["N1"]
	if !errors.Is(res.WriteErr, ErrGraphWrite) || res.WriteError == "" {
		t.Errorf("N1 write error = %v, want ErrGraphWrite", res.WriteErr)
	}
	if res.Failed() {
		t.Error("a write failure must not mark the visitor as failed")
	}
	stats := result.Stats
	if stats.GraphWriteFailures != 1 || stats.ErrorsByKind[KindGraphWrite] != 1 {
		t.Errorf("write failures = %d, by kind %v", stats.GraphWriteFailures, stats.ErrorsByKind)
	}
	if got := stats.VisitorsWithRecommendations + stats.VisitorsWithoutRecommendations + stats.Errors; got != stats.VisitorsProcessed {
		t.Errorf("with %d + without %d + errors %d != processed %d",
			stats.VisitorsWithRecommendations, stats.VisitorsWithoutRecommendations, stats.Errors, stats.VisitorsProcessed)
	}
	if _, ok := store.written("R1"); !ok {
		t.Error("other visitors must still be written")
	}
}

func TestEngine_Run_GraphWriteMissingVisitorNotRetried(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Write.Retries = 3

	store := scenarioStore()
	store.deleted["V1"] = true

	result, err := newTestEngine(t, cfg, store, &letterEmbedder{}).Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.attempts["V1"] != 1 {
		t.Errorf("V1 attempts = %d, want 1", store.attempts["V1"])
	}
	if res := result.Results["V1"]; !errors.Is(res.WriteErr, ErrVisitorNotFound) {
		t.Errorf("V1 write error = %v, want ErrVisitorNotFound", res.WriteErr)
	}
	if result.Stats.GraphWriteFailures != 1 {
		t.Errorf("GraphWriteFailures = %d, want 1", result.Stats.GraphWriteFailures)
	}
}

func TestEngine_Run_ControlGroupWithheld(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.catalog = testCatalog()
	for i := range 10 {
		store.addVisitor(Visitor{ID: fmt.Sprintf("V%02d", i), AttendedBefore: true},
			PastSession{ID: "P1", Embedding: []float32{1, 0}})
	}

	cfg := testConfig()
	cfg.ControlGroup = ControlGroupConfig{Enabled: true, Percentage: 0.2, Seed: 99}
	exporter := &recordingExporter{}
	engine := newTestEngine(t, cfg, store, nil)
	engine.SetExporter(exporter)

	result, err := engine.Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stats.ControlVisitors != 2 || result.Stats.TreatmentVisitors != 8 {
		t.Fatalf("control/treatment = %d/%d, want 2/8", result.Stats.ControlVisitors, result.Stats.TreatmentVisitors)
	}
	if exporter.calls != 1 || exporter.control != 2 {
		t.Errorf("exporter calls = %d, control = %d", exporter.calls, exporter.control)
	}

	for _, res := range result.Control() {
		if len(res.Recommendations) == 0 {
			t.Errorf("control visitor %s should still be computed", res.Visitor.ID)
		}
		w, _ := store.written(res.Visitor.ID)
		if w.flags.ControlGroup != Control || w.flags.HasRecommendation || len(w.recs) != 0 {
			t.Errorf("control visitor %s write = %+v, want flags only", res.Visitor.ID, w)
		}
	}
	for _, res := range result.Treatment() {
		if w, _ := store.written(res.Visitor.ID); len(w.recs) == 0 || w.flags.ControlGroup != Treatment {
			t.Errorf("treatment visitor %s write = %+v", res.Visitor.ID, w)
		}
	}
}

func TestEngine_Run_ControlGroupMaterialized(t *testing.T) {
	t.Parallel()

	store := scenarioStore()
	cfg := testConfig()
	cfg.ControlGroup = ControlGroupConfig{Enabled: true, Percentage: 1, Seed: 1, Materialize: true}

	if _, err := newTestEngine(t, cfg, store, &letterEmbedder{}).Run(t.Context()); err != nil {
		t.Fatal(err)
	}
	w, _ := store.written("V1")
	if w.flags.ControlGroup != Control || len(w.recs) == 0 {
		t.Errorf("V1 write = %+v, want control relationships materialized", w)
	}
}

func TestEngine_Run_WritesDisabled(t *testing.T) {
	t.Parallel()

	store := scenarioStore()
	cfg := testConfig()
	cfg.Write.Enabled = false

	result, err := newTestEngine(t, cfg, store, &letterEmbedder{}).Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(store.writes) != 0 || result.Stats.GraphWrites != 0 {
		t.Errorf("writes = %d, want none", len(store.writes))
	}
}

func TestEngine_Run_SequentialPool(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Workers = 1
	cfg.ScoringWorkers = 1

	sequential, err := newTestEngine(t, cfg, scenarioStore(), &letterEmbedder{}).Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := newTestEngine(t, testConfig(), scenarioStore(), &letterEmbedder{}).Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	for id, res := range sequential.Results {
		if !slices.Equal(ids(res.Recommendations), ids(parallel.Results[id].Recommendations)) {
			t.Errorf("visitor %s differs between pool sizes", id)
		}
	}
}

func TestEngine_Run_RejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	store := scenarioStore()
	store.block = make(chan struct{})
	engine := newTestEngine(t, testConfig(), store, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = engine.Run(t.Context())
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !engine.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	_, err := engine.Run(t.Context())
	close(store.block)
	wg.Wait()

	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Run() error = %v, want ErrRunInProgress", err)
	}
}

func TestEngine_Run_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	result, err := newTestEngine(t, testConfig(), scenarioStore(), nil).Run(ctx)
	if err == nil {
		t.Fatal("Run() on canceled context should fail")
	}
	if result.Stats.Fatal == "" {
		t.Error("Fatal should describe the cancellation")
	}
}

type countingObserver struct {
	mu        sync.Mutex
	visitors  int
	writes    int
	completed int
}

func (c *countingObserver) VisitorProcessed(*VisitorResult, time.Duration) {
	c.mu.Lock()
	c.visitors++
	c.mu.Unlock()
}

func (c *countingObserver) GraphWrite(int, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
}

func (c *countingObserver) RunCompleted(*RunStatistics) {
	c.mu.Lock()
	c.completed++
	c.mu.Unlock()
}

func TestEngine_Run_Observer(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	engine := newTestEngine(t, testConfig(), scenarioStore(), &letterEmbedder{})
	engine.SetObserver(obs)

	result, err := engine.Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if obs.visitors != len(result.Results) || obs.writes != result.Stats.GraphWrites || obs.completed != 1 {
		t.Errorf("observer = %+v, results = %d", obs, len(result.Results))
	}
}
