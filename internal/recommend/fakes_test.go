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
	"sort"
	"strings"
	"sync"
)

// unitVec returns a 2-d unit vector whose cosine with [1, 0] is c.
func unitVec(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

// write is one recorded ReplaceRecommendations call.
type write struct {
	flags VisitorFlags
	recs  []Recommendation
}

// memStore is an in-memory Store for tests.
type memStore struct {
	mu sync.Mutex

	catalog    []CatalogSession
	catalogErr error
	visitors   map[string]*Visitor
	past       map[string][]PastSession

	// failWrites makes the first n writes for a visitor fail.
	failWrites map[string]int
	writes     map[string]write
	attempts   map[string]int

	// deleted makes writes for a visitor fail as if it was removed after
	// being read.
	deleted map[string]bool

	// block, when set, holds CatalogSessions until closed.
	block chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		visitors:   make(map[string]*Visitor),
		past:       make(map[string][]PastSession),
		failWrites: make(map[string]int),
		writes:     make(map[string]write),
		attempts:   make(map[string]int),
		deleted:    make(map[string]bool),
	}
}

func (m *memStore) addVisitor(v Visitor, past ...PastSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vv := v
	m.visitors[v.ID] = &vv
	if len(past) > 0 {
		m.past[v.ID] = append(m.past[v.ID], past...)
	}
}

func (m *memStore) CatalogSessions(ctx context.Context) ([]CatalogSession, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.catalogErr != nil {
		return nil, m.catalogErr
	}
	return append([]CatalogSession(nil), m.catalog...), nil
}

func (m *memStore) VisitorIDs(_ context.Context, filter VisitorFilter) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	if len(filter.IDs) > 0 {
		ids = append(ids, filter.IDs...)
	} else {
		for id, v := range m.visitors {
			if filter.OnlyNew && v.HasRecommendation {
				continue
			}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) Visitor(_ context.Context, id string) (*Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visitors[id]
	if !ok {
		return nil, fmt.Errorf("visitor %s: %w", id, ErrVisitorNotFound)
	}
	vv := *v
	return &vv, nil
}

func (m *memStore) PastSessions(_ context.Context, visitorID string) ([]PastSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PastSession(nil), m.past[visitorID]...), nil
}

func (m *memStore) ReturningVisitors(_ context.Context) ([]Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Visitor
	for id, v := range m.visitors {
		if v.AttendedBefore && len(m.past[id]) > 0 {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CohortSessions(_ context.Context, visitorIDs []string) ([]PastSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PastSession
	for _, id := range visitorIDs {
		out = append(out, m.past[id]...)
	}
	return out, nil
}

func (m *memStore) ReplaceRecommendations(_ context.Context, visitorID string, flags VisitorFlags, recs []Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[visitorID]++
	if m.deleted[visitorID] {
		return fmt.Errorf("replace %s: %w", visitorID, ErrVisitorNotFound)
	}
	if m.failWrites[visitorID] > 0 {
		m.failWrites[visitorID]--
		return errors.New("transient write failure")
	}
	m.writes[visitorID] = write{flags: flags, recs: append([]Recommendation(nil), recs...)}
	if v, ok := m.visitors[visitorID]; ok {
		v.HasRecommendation = flags.HasRecommendation
	}
	return nil
}

func (m *memStore) written(visitorID string) (write, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.writes[visitorID]
	return w, ok
}

// letterEmbedder maps text to its letter histogram, so similar profile text
// produces similar vectors.
type letterEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error

	// failOn fails any text containing it, case-insensitively.
	failOn string
}

func (l *letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	l.mu.Lock()
	l.calls++
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if l.failOn != "" && strings.Contains(strings.ToLower(text), strings.ToLower(l.failOn)) {
		return nil, errors.New("embedding rejected")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

// recordingExporter captures Export calls.
type recordingExporter struct {
	mu       sync.Mutex
	calls    int
	overlaps OverlapIndex
	control  int
}

func (r *recordingExporter) Export(_ context.Context, result *RunResult, overlaps OverlapIndex) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.overlaps = overlaps
	r.control = len(result.Control())
	return []string{"recommendations.json"}, nil
}
