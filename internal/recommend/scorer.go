// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Scorer compares candidate past sessions with the catalog.
type Scorer struct {
	catalog     *Catalog
	minScore    float64
	parallelism int
}

// NewScorer creates a scorer. parallelism bounds the goroutines used per
// call; values below 1 score sequentially.
func NewScorer(catalog *Catalog, minScore float64, parallelism int) *Scorer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Scorer{catalog: catalog, minScore: minScore, parallelism: parallelism}
}

// Score scores every (candidate, catalog session) pair, drops pairs below
// the minimum score and keeps the best score per catalog session. The result
// is ordered by similarity descending, then session id ascending.
func (s *Scorer) Score(ctx context.Context, candidates []PastSession) ([]ScoredSession, error) {
	best := make(map[string]ScoredSession)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for i := range candidates {
		cand := &candidates[i]
		if len(cand.Embedding) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local := s.scoreOne(cand)

			mu.Lock()
			defer mu.Unlock()
			for id, scored := range local {
				if cur, ok := best[id]; !ok || better(scored, cur) {
					best[id] = scored
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ScoredSession, 0, len(best))
	for _, scored := range best {
		out = append(out, scored)
	}
	SortBySimilarity(out)
	return out, nil
}

func (s *Scorer) scoreOne(cand *PastSession) map[string]ScoredSession {
	local := make(map[string]ScoredSession)
	for _, session := range s.catalog.Sessions() {
		sim := CosineSimilarity(cand.Embedding, session.Embedding)
		if sim < s.minScore {
			continue
		}
		local[session.ID] = ScoredSession{
			CatalogSession:     *session,
			Similarity:         sim,
			MatchedPastSession: cand.ID,
		}
	}
	return local
}

// better reports whether a should replace b as the kept score for a session.
// Equal scores keep the lexicographically smaller past session so the result
// does not depend on goroutine scheduling.
func better(a, b ScoredSession) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.MatchedPastSession < b.MatchedPastSession
}

// SortBySimilarity orders sessions by similarity descending, then id ascending.
func SortBySimilarity(sessions []ScoredSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].Similarity != sessions[j].Similarity {
			return sessions[i].Similarity > sessions[j].Similarity
		}
		return sessions[i].ID < sessions[j].ID
	})
}
