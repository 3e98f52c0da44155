// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"strings"
	"time"
)

// window is a session's half-open time interval [start, end) on a day,
// in minutes since midnight. date is the normalized day key.
type window struct {
	date       string
	start, end int
}

// sessionWindow parses the session's schedule. Sessions with a missing or
// malformed schedule have no window and never overlap anything.
func sessionWindow(s *CatalogSession) (window, bool) {
	date := normalizeDate(s.Date)
	if date == "" {
		return window{}, false
	}
	start, ok := parseClock(s.StartTime)
	if !ok {
		return window{}, false
	}
	end, ok := parseClock(s.EndTime)
	if !ok || end <= start {
		return window{}, false
	}
	return window{date: date, start: start, end: end}, true
}

// normalizeDate returns calendar dates as YYYY-MM-DD so "2026-3-1" and
// "2026-03-01" are the same day. Labels that are not dates, such as
// "Day 1", are compared case-insensitively.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range []string{"2006-1-2", "2006/1/2", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return strings.ToLower(s)
}

func parseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05", "3:04pm", "3:04 PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}

func (w window) overlaps(o window) bool {
	return w.date == o.date && w.start < o.end && o.start < w.end
}

// SessionsOverlap reports whether two sessions share any time on the same date.
// Back-to-back sessions do not overlap.
func SessionsOverlap(a, b *CatalogSession) bool {
	wa, ok := sessionWindow(a)
	if !ok {
		return false
	}
	wb, ok := sessionWindow(b)
	if !ok {
		return false
	}
	return wa.overlaps(wb)
}

// SelectSessions picks the final list from sessions already ordered by
// similarity. With resolveOverlaps, a session that overlaps an already
// selected one is skipped and its id reported as dropped. At most limit
// sessions are returned.
func SelectSessions(sessions []ScoredSession, limit int, resolveOverlaps bool) ([]ScoredSession, []string) {
	selected := make([]ScoredSession, 0, min(limit, len(sessions)))
	var windows []window
	var dropped []string

	for i := range sessions {
		if len(selected) >= limit {
			break
		}
		s := sessions[i]
		if resolveOverlaps {
			if w, ok := sessionWindow(&s.CatalogSession); ok {
				if overlapsAny(w, windows) {
					dropped = append(dropped, s.ID)
					continue
				}
				windows = append(windows, w)
			}
		}
		selected = append(selected, s)
	}
	return selected, dropped
}

func overlapsAny(w window, others []window) bool {
	for _, o := range others {
		if w.overlaps(o) {
			return true
		}
	}
	return false
}
