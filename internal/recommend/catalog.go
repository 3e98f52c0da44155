// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Catalog is the immutable set of current-cycle sessions for one run.
// It is safe for concurrent reads.
type Catalog struct {
	byID    map[string]*CatalogSession
	ordered []*CatalogSession
	skipped int
}

// NewCatalog builds a catalog from sessions. Sessions without an embedding
// are skipped; an empty result is ErrCatalogUnavailable.
func NewCatalog(sessions []CatalogSession) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*CatalogSession, len(sessions))}

	for i := range sessions {
		s := sessions[i]
		if len(s.Embedding) == 0 || s.ID == "" {
			c.skipped++
			continue
		}
		if _, dup := c.byID[s.ID]; dup {
			c.skipped++
			continue
		}
		c.byID[s.ID] = &s
		c.ordered = append(c.ordered, &s)
	}

	if len(c.ordered) == 0 {
		return nil, fmt.Errorf("%w: no session carries an embedding (%d skipped)", ErrCatalogUnavailable, c.skipped)
	}

	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].ID < c.ordered[j].ID })
	return c, nil
}

// LoadCatalog reads the catalog from store once.
func LoadCatalog(ctx context.Context, store Store, timeout time.Duration) (*Catalog, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sessions, err := store.CatalogSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	return NewCatalog(sessions)
}

// Get returns the session with id.
func (c *Catalog) Get(id string) (*CatalogSession, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Len returns the number of sessions with embeddings.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// Skipped returns how many input sessions were dropped when building.
func (c *Catalog) Skipped() int {
	return c.skipped
}

// Sessions returns the sessions ordered by id. Callers must not modify them.
func (c *Catalog) Sessions() []*CatalogSession {
	return c.ordered
}
