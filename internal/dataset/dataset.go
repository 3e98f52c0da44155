// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package dataset defines the JSON interchange document used to seed a graph
// store with visitors, the current session catalog and prior-cycle attendance.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sessionrec/internal/validation"
)

// Dataset is a complete store snapshot.
type Dataset struct {
	Visitors     []Visitor        `json:"visitors" validate:"dive"`
	Sessions     []CatalogSession `json:"sessions" validate:"dive"`
	PastSessions []PastSession    `json:"past_sessions" validate:"dive"`
}

// Visitor is a visitor row plus the ids of past sessions they attended.
type Visitor struct {
	BadgeID          string         `json:"badge_id" validate:"required"`
	JobRole          string         `json:"job_role"`
	PracticeType     string         `json:"practice_type"`
	OrganisationType string         `json:"organisation_type"`
	Country          string         `json:"country"`
	JobTitle         string         `json:"job_title"`
	AttendedBefore   bool           `json:"attended_before"`
	Attributes       map[string]any `json:"attributes,omitempty"`
	Attended         []string       `json:"attended,omitempty"`
}

// CatalogSession is a current-cycle session.
type CatalogSession struct {
	SessionID   string    `json:"session_id" validate:"required"`
	Title       string    `json:"title"`
	Stream      string    `json:"stream"`
	Venue       string    `json:"venue"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Sponsored   bool      `json:"sponsored"`
	SponsorName string    `json:"sponsor_name,omitempty"`
	Embedding   []float32 `json:"embedding"`
}

// PastSession is a prior-cycle session. Cycle is a free-form label such as
// "2025".
type PastSession struct {
	SessionID string    `json:"session_id" validate:"required"`
	Title     string    `json:"title"`
	Stream    string    `json:"stream"`
	Cycle     string    `json:"cycle"`
	Embedding []float32 `json:"embedding"`
}

// Stats counts imported rows.
type Stats struct {
	Visitors     int `json:"visitors"`
	Sessions     int `json:"sessions"`
	PastSessions int `json:"past_sessions"`
	Attendance   int `json:"attendance"`
}

// Decode reads a dataset document.
func Decode(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Load reads and validates a dataset file.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied import path
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Validate checks field constraints, id uniqueness and that attendance refers
// to known past sessions.
func (d *Dataset) Validate() error {
	if verr := validation.ValidateStruct(d); verr != nil {
		return fmt.Errorf("invalid dataset: %w", verr)
	}

	var errs []error

	visitors := make(map[string]struct{}, len(d.Visitors))
	for i, v := range d.Visitors {
		if _, dup := visitors[v.BadgeID]; dup {
			errs = append(errs, fmt.Errorf("visitors[%d]: duplicate badge_id %q", i, v.BadgeID))
		}
		visitors[v.BadgeID] = struct{}{}
	}

	sessions := make(map[string]struct{}, len(d.Sessions))
	for i, s := range d.Sessions {
		if _, dup := sessions[s.SessionID]; dup {
			errs = append(errs, fmt.Errorf("sessions[%d]: duplicate session_id %q", i, s.SessionID))
		}
		sessions[s.SessionID] = struct{}{}
	}

	past := make(map[string]struct{}, len(d.PastSessions))
	for i, s := range d.PastSessions {
		if _, dup := past[s.SessionID]; dup {
			errs = append(errs, fmt.Errorf("past_sessions[%d]: duplicate session_id %q", i, s.SessionID))
		}
		past[s.SessionID] = struct{}{}
	}

	for _, v := range d.Visitors {
		for _, id := range v.Attended {
			if _, ok := past[id]; !ok {
				errs = append(errs, fmt.Errorf("visitor %q attended unknown past session %q", v.BadgeID, id))
			}
		}
	}

	return errors.Join(errs...)
}

// Counts returns the row counts an import of d produces.
func (d *Dataset) Counts() Stats {
	s := Stats{
		Visitors:     len(d.Visitors),
		Sessions:     len(d.Sessions),
		PastSessions: len(d.PastSessions),
	}
	for _, v := range d.Visitors {
		s.Attendance += len(v.Attended)
	}
	return s
}
