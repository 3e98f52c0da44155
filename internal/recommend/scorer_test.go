// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	t.Run("skips sessions without embeddings", func(t *testing.T) {
		t.Parallel()
		cat, err := NewCatalog([]CatalogSession{
			{ID: "S2", Embedding: []float32{1}},
			{ID: "S1", Embedding: []float32{1}},
			{ID: "S3"},
			{ID: "S1", Embedding: []float32{0}},
		})
		if err != nil {
			t.Fatalf("NewCatalog() error = %v", err)
		}
		if cat.Len() != 2 || cat.Skipped() != 2 {
			t.Errorf("Len() = %d, Skipped() = %d, want 2, 2", cat.Len(), cat.Skipped())
		}
		if got := cat.Sessions()[0].ID; got != "S1" {
			t.Errorf("first session = %s, want S1", got)
		}
		if _, ok := cat.Get("S3"); ok {
			t.Error("S3 should not be in the catalog")
		}
	})

	t.Run("no embeddings is unavailable", func(t *testing.T) {
		t.Parallel()
		_, err := NewCatalog([]CatalogSession{{ID: "S1"}})
		if !errors.Is(err, ErrCatalogUnavailable) {
			t.Errorf("error = %v, want ErrCatalogUnavailable", err)
		}
	})

	t.Run("store failure is unavailable", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		store.catalogErr = errors.New("connection refused")
		_, err := LoadCatalog(t.Context(), store, 0)
		if !errors.Is(err, ErrCatalogUnavailable) {
			t.Errorf("error = %v, want ErrCatalogUnavailable", err)
		}
	})
}

func TestScorer_DedupKeepsMax(t *testing.T) {
	t.Parallel()

	cat, err := NewCatalog([]CatalogSession{{ID: "S", Embedding: []float32{1, 0}}})
	if err != nil {
		t.Fatal(err)
	}

	for _, workers := range []int{1, 4} {
		scorer := NewScorer(cat, 0.3, workers)
		got, err := scorer.Score(t.Context(), []PastSession{
			{ID: "P1", Embedding: unitVec(0.4)},
			{ID: "P2", Embedding: unitVec(0.7)},
		})
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("workers=%d: got %d sessions, want 1", workers, len(got))
		}
		if math.Abs(got[0].Similarity-0.7) > 1e-4 {
			t.Errorf("workers=%d: similarity = %f, want 0.7", workers, got[0].Similarity)
		}
		if got[0].MatchedPastSession != "P2" {
			t.Errorf("workers=%d: matched = %s, want P2", workers, got[0].MatchedPastSession)
		}
	}
}

func TestScorer_MinScoreAndOrdering(t *testing.T) {
	t.Parallel()

	cat, err := NewCatalog([]CatalogSession{
		{ID: "S3", Embedding: unitVec(0.81)},
		{ID: "S7", Embedding: unitVec(0.25)},
		{ID: "S1", Embedding: unitVec(0.5)},
		{ID: "S0", Embedding: unitVec(0.5)},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := NewScorer(cat, 0.3, 2).Score(t.Context(), []PastSession{
		{ID: "P1", Embedding: []float32{1, 0}},
		{ID: "P-empty"},
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	wantIDs := []string{"S3", "S0", "S1"}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d sessions, want %d: %+v", len(got), len(wantIDs), got)
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestScorer_Canceled(t *testing.T) {
	t.Parallel()

	cat, _ := NewCatalog([]CatalogSession{{ID: "S", Embedding: []float32{1, 0}}})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewScorer(cat, 0, 1).Score(ctx, []PastSession{{ID: "P", Embedding: []float32{1, 0}}})
	if err == nil {
		t.Error("Score() on canceled context should fail")
	}
}
