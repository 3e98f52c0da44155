// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"fmt"
	"strings"
)

// RuleFilter narrows a visitor's scored sessions. Implementations return the
// kept sessions ordered by similarity and a human-readable trace of the rules
// that fired.
type RuleFilter interface {
	Name() string
	Filter(ctx context.Context, visitor *Visitor, sessions []ScoredSession) ([]ScoredSession, []string, error)
}

var (
	equineMixedExclusions = []string{"exotics", "feline", "exotic animal", "farm", "small animal"}
	smallAnimalExclusions = []string{"equine", "farm animal", "farm", "large animal"}
	vetExclusions         = []string{"nursing"}
	nurseInclusions       = []string{"nursing", "wellbeing", "welfare"}
)

// DeterministicFilter applies the practice-type and job-role rule families
// in a configured order. Each family sees the output of the previous one.
type DeterministicFilter struct {
	order      []string
	vetRoles   map[string]struct{}
	nurseRoles map[string]struct{}
}

// NewDeterministicFilter creates the rule filter from configuration.
func NewDeterministicFilter(cfg RulesConfig) *DeterministicFilter {
	order := cfg.Priority
	if len(order) == 0 {
		order = []string{RulePracticeType, RuleJobRole}
	}
	return &DeterministicFilter{
		order:      append([]string(nil), order...),
		vetRoles:   roleSet(cfg.VetRoles),
		nurseRoles: roleSet(cfg.NurseRoles),
	}
}

// Name implements RuleFilter.
func (f *DeterministicFilter) Name() string {
	return "deterministic"
}

// Filter implements RuleFilter. It never fails.
func (f *DeterministicFilter) Filter(_ context.Context, visitor *Visitor, sessions []ScoredSession) ([]ScoredSession, []string, error) {
	kept := append([]ScoredSession(nil), sessions...)
	var trace []string

	for _, family := range f.order {
		var note string
		switch family {
		case RulePracticeType:
			kept, note = f.applyPracticeType(visitor, kept)
		case RuleJobRole:
			kept, note = f.applyJobRole(visitor, kept)
		}
		if note != "" {
			trace = append(trace, note)
		}
	}

	SortBySimilarity(kept)
	return kept, trace, nil
}

func (f *DeterministicFilter) applyPracticeType(v *Visitor, sessions []ScoredSession) ([]ScoredSession, string) {
	if isPlaceholder(v.PracticeType) {
		return sessions, ""
	}
	tags := splitTags(v.PracticeType)

	switch {
	case anyTagContains(tags, "equine", "mixed"):
		kept, removed := exclude(sessions, equineMixedExclusions)
		return kept, fmt.Sprintf("%s: equine/mixed practice removed %d session(s) in %s",
			RulePracticeType, removed, strings.Join(equineMixedExclusions, ", "))
	case anyTagContains(tags, "small animal"):
		kept, removed := exclude(sessions, smallAnimalExclusions)
		return kept, fmt.Sprintf("%s: small animal practice removed %d session(s) in %s",
			RulePracticeType, removed, strings.Join(smallAnimalExclusions, ", "))
	default:
		return sessions, ""
	}
}

func (f *DeterministicFilter) applyJobRole(v *Visitor, sessions []ScoredSession) ([]ScoredSession, string) {
	if isPlaceholder(v.JobRole) {
		return sessions, ""
	}
	role := normalize(v.JobRole)

	if _, ok := f.vetRoles[role]; ok {
		kept, removed := exclude(sessions, vetExclusions)
		return kept, fmt.Sprintf("%s: vet role %q removed %d nursing session(s)", RuleJobRole, v.JobRole, removed)
	}
	if _, ok := f.nurseRoles[role]; ok {
		kept := make([]ScoredSession, 0, len(sessions))
		for i := range sessions {
			if streamMatches(sessions[i].Stream, nurseInclusions) {
				kept = append(kept, sessions[i])
			}
		}
		return kept, fmt.Sprintf("%s: nurse role %q kept %d of %d session(s) in %s",
			RuleJobRole, v.JobRole, len(kept), len(sessions), strings.Join(nurseInclusions, ", "))
	}
	return sessions, ""
}

// exclude drops sessions whose stream matches any keyword.
func exclude(sessions []ScoredSession, keywords []string) ([]ScoredSession, int) {
	kept := make([]ScoredSession, 0, len(sessions))
	for i := range sessions {
		if !streamMatches(sessions[i].Stream, keywords) {
			kept = append(kept, sessions[i])
		}
	}
	return kept, len(sessions) - len(kept)
}

// streamMatches reports whether any semicolon-separated stream tag contains
// any keyword, ignoring case.
func streamMatches(stream string, keywords []string) bool {
	return anyTagContains(splitTags(stream), keywords...)
}

func anyTagContains(tags []string, keywords ...string) bool {
	for _, tag := range tags {
		for _, kw := range keywords {
			if strings.Contains(tag, kw) {
				return true
			}
		}
	}
	return false
}

// splitTags splits a semicolon-separated set into lowercased, trimmed tags.
func splitTags(s string) []string {
	parts := strings.Split(s, ";")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := normalize(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isPlaceholder reports whether a profile value carries no information.
func isPlaceholder(s string) bool {
	switch normalize(s) {
	case "", "na", "n/a", "none", "null":
		return true
	default:
		return false
	}
}

func roleSet(roles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if n := normalize(r); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
