// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Candidates are the past sessions a visitor's recommendations are scored from.
type Candidates struct {
	Strategy Strategy
	Sessions []PastSession
	Cohort   []CohortMember
	Relaxed  bool

	// CohortErr is set when the visitor's own profile could not be embedded
	// and cohort discovery degraded to an empty cohort.
	CohortErr error

	// Skipped lists returning visitors left out of the cohort pool because
	// their profiles could not be embedded.
	Skipped []string
}

// runCache holds data shared by all visitors of a single run. It is created
// per run and discarded afterwards. Loads are bound to the run context so a
// single visitor's deadline cannot poison the shared entry.
type runCache struct {
	runCtx context.Context //nolint:containedctx // scoped to one run

	returningOnce sync.Once
	returning     []Visitor
	returningErr  error

	mu         sync.Mutex
	profileVec map[string][]float32
}

func newRunCache(runCtx context.Context) *runCache {
	return &runCache{runCtx: runCtx, profileVec: make(map[string][]float32)}
}

// CandidateGenerator chooses and executes the candidate strategy for a visitor.
type CandidateGenerator struct {
	store    Store
	embedder Embedder
	cfg      *Config
	cache    *runCache
}

func newCandidateGenerator(store Store, embedder Embedder, cfg *Config, cache *runCache) *CandidateGenerator {
	return &CandidateGenerator{store: store, embedder: embedder, cfg: cfg, cache: cache}
}

// Generate returns the candidates for v. Returning visitors use their own
// history; everyone else uses a cohort of similar returning visitors. An
// embedding failure during cohort discovery yields empty candidates with
// CohortErr set, not an error.
func (g *CandidateGenerator) Generate(ctx context.Context, v *Visitor) (*Candidates, error) {
	if v.AttendedBefore {
		sessions, err := g.ownHistory(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		return &Candidates{Strategy: StrategyOwnHistory, Sessions: sessions}, nil
	}

	cands := &Candidates{Strategy: StrategyCohort}
	if err := g.findCohort(ctx, v, cands); err != nil {
		if !errors.Is(err, ErrEmbeddingService) {
			return nil, err
		}
		cands.CohortErr = err
		return cands, nil
	}
	if len(cands.Cohort) == 0 {
		return cands, nil
	}

	ids := make([]string, len(cands.Cohort))
	for i, m := range cands.Cohort {
		ids[i] = m.VisitorID
	}
	qctx, cancel := withTimeout(ctx, g.cfg.Timeouts.Query)
	defer cancel()
	sessions, err := g.store.CohortSessions(qctx, ids)
	if err != nil {
		return nil, fmt.Errorf("cohort sessions: %w", err)
	}
	cands.Sessions = dedupPastSessions(sessions)
	return cands, nil
}

func (g *CandidateGenerator) ownHistory(ctx context.Context, visitorID string) ([]PastSession, error) {
	qctx, cancel := withTimeout(ctx, g.cfg.Timeouts.Query)
	defer cancel()

	sessions, err := g.store.PastSessions(qctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("past sessions: %w", err)
	}
	return dedupPastSessions(sessions), nil
}

// findCohort ranks returning visitors by similarity to v and stores the top
// k in cands. When fewer than k share at least one categorical attribute with
// v, the pool widens to every returning visitor ranked by embedding alone,
// which can yield weakly related members. A pool member whose profile cannot
// be embedded is skipped; only a failure on v's own profile is an error.
func (g *CandidateGenerator) findCohort(ctx context.Context, v *Visitor, cands *Candidates) error {
	returning, err := g.returningVisitors()
	if err != nil {
		return err
	}

	pool := make([]*Visitor, 0, len(returning))
	matched := make([]*Visitor, 0, len(returning))
	for i := range returning {
		r := &returning[i]
		if r.ID == v.ID {
			continue
		}
		pool = append(pool, r)
		if CategoricalMatches(v, r) > 0 {
			matched = append(matched, r)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	k := g.cfg.Cohort.Size
	relaxed := len(matched) < k
	if !relaxed {
		pool = matched
	}
	cands.Relaxed = relaxed

	vec, err := g.embed(ctx, ProfileText(v))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: visitor profile: %w", ErrEmbeddingService, err)
	}

	members := make([]CohortMember, 0, len(pool))
	for _, r := range pool {
		rvec, err := g.profileVector(ctx, r)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			cands.Skipped = append(cands.Skipped, r.ID)
			continue
		}

		m := CohortMember{
			VisitorID:      r.ID,
			EmbeddingScore: CosineSimilarity(vec, rvec),
		}
		if relaxed {
			m.Score = m.EmbeddingScore
		} else {
			m.CategoricalScore = float64(CategoricalMatches(v, r)) / categoricalAttributes
			m.Score = g.cfg.Cohort.CategoricalWeight*m.CategoricalScore + g.cfg.Cohort.EmbeddingWeight*m.EmbeddingScore
		}
		members = append(members, m)
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].VisitorID < members[j].VisitorID
	})
	if len(members) > k {
		members = members[:k]
	}
	cands.Cohort = members
	return nil
}

func (g *CandidateGenerator) returningVisitors() ([]Visitor, error) {
	g.cache.returningOnce.Do(func() {
		qctx, cancel := withTimeout(g.cache.runCtx, g.cfg.Timeouts.Query)
		defer cancel()
		g.cache.returning, g.cache.returningErr = g.store.ReturningVisitors(qctx)
		if g.cache.returningErr != nil {
			g.cache.returningErr = fmt.Errorf("returning visitors: %w", g.cache.returningErr)
		}
	})
	return g.cache.returning, g.cache.returningErr
}

// profileVector embeds a returning visitor's profile once per run.
func (g *CandidateGenerator) profileVector(ctx context.Context, v *Visitor) ([]float32, error) {
	g.cache.mu.Lock()
	vec, ok := g.cache.profileVec[v.ID]
	g.cache.mu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := g.embed(ctx, ProfileText(v))
	if err != nil {
		return nil, err
	}

	g.cache.mu.Lock()
	g.cache.profileVec[v.ID] = vec
	g.cache.mu.Unlock()
	return vec, nil
}

// embed returns a nil vector for empty text; it scores 0 against anything.
func (g *CandidateGenerator) embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	if g.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	ectx, cancel := withTimeout(ctx, g.cfg.Timeouts.Embed)
	defer cancel()
	return g.embedder.Embed(ectx, text)
}

const categoricalAttributes = 4

// CategoricalMatches counts exact, case-insensitive matches across job role,
// practice type, organisation type and country. Placeholder values never match.
func CategoricalMatches(a, b *Visitor) int {
	pairs := [categoricalAttributes][2]string{
		{a.JobRole, b.JobRole},
		{a.PracticeType, b.PracticeType},
		{a.OrganisationType, b.OrganisationType},
		{a.Country, b.Country},
	}
	n := 0
	for _, p := range pairs {
		if !isPlaceholder(p[0]) && normalize(p[0]) == normalize(p[1]) {
			n++
		}
	}
	return n
}

// ProfileText is the text embedded for cohort similarity: the visitor's
// informative profile attributes in a fixed order.
func ProfileText(v *Visitor) string {
	fields := []struct{ label, value string }{
		{"job role", v.JobRole},
		{"job title", v.JobTitle},
		{"practice type", v.PracticeType},
		{"organisation type", v.OrganisationType},
		{"country", v.Country},
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if isPlaceholder(f.value) {
			continue
		}
		parts = append(parts, f.label+": "+strings.TrimSpace(f.value))
	}
	return strings.Join(parts, "; ")
}

func dedupPastSessions(sessions []PastSession) []PastSession {
	seen := make(map[string]struct{}, len(sessions))
	out := make([]PastSession, 0, len(sessions))
	for i := range sessions {
		s := sessions[i]
		if len(s.Embedding) == 0 {
			continue
		}
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
