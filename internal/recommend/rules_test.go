// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"slices"
	"strings"
	"testing"
)

func scored(id, stream string, sim float64) ScoredSession {
	return ScoredSession{CatalogSession: CatalogSession{ID: id, Stream: stream}, Similarity: sim}
}

func ids(sessions []ScoredSession) []string {
	out := make([]string, len(sessions))
	for i := range sessions {
		out[i] = sessions[i].ID
	}
	return out
}

func TestDeterministicFilter(t *testing.T) {
	t.Parallel()

	sessions := []ScoredSession{
		scored("equine", "Equine; Surgery", 0.9),
		scored("feline", "Feline Medicine", 0.8),
		scored("smallanimal", "Small Animal Practice", 0.75),
		scored("farm", "Farm Animal Health", 0.7),
		scored("nursing", "Nursing; Anaesthesia", 0.65),
		scored("wellbeing", "Wellbeing", 0.6),
		scored("exotics", "Exotics", 0.55),
		scored("business", "Practice Management", 0.5),
		scored("largeanimal", "Large Animal", 0.45),
	}

	tests := []struct {
		name    string
		visitor Visitor
		want    []string
	}{
		{
			name:    "equine practice excludes small animal streams",
			visitor: Visitor{PracticeType: "Equine", JobRole: "Practice Manager"},
			want:    []string{"equine", "nursing", "wellbeing", "business", "largeanimal"},
		},
		{
			name:    "mixed practice tag in a set",
			visitor: Visitor{PracticeType: "Companion Animal; MIXED Practice", JobRole: "NA"},
			want:    []string{"equine", "nursing", "wellbeing", "business", "largeanimal"},
		},
		{
			name:    "small animal practice excludes large animal streams",
			visitor: Visitor{PracticeType: "Small Animal", JobRole: "Other"},
			want:    []string{"feline", "smallanimal", "nursing", "wellbeing", "exotics", "business"},
		},
		{
			name:    "vet role drops nursing",
			visitor: Visitor{PracticeType: "N/A", JobRole: "Vet/Vet Surgeon"},
			want:    []string{"equine", "feline", "smallanimal", "farm", "wellbeing", "exotics", "business", "largeanimal"},
		},
		{
			name:    "nurse role keeps only nursing and wellbeing",
			visitor: Visitor{PracticeType: "", JobRole: "vet nurse"},
			want:    []string{"nursing", "wellbeing"},
		},
		{
			name:    "placeholders short-circuit both families",
			visitor: Visitor{PracticeType: "NA", JobRole: ""},
			want:    ids(sessions),
		},
		{
			name:    "equine nurse applies both families in order",
			visitor: Visitor{PracticeType: "Equine", JobRole: "Head Nurse/Senior Nurse"},
			want:    []string{"nursing", "wellbeing"},
		},
	}

	filter := NewDeterministicFilter(DefaultConfig().Rules)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, _, err := filter.Filter(t.Context(), &tt.visitor, sessions)
			if err != nil {
				t.Fatalf("Filter() error = %v", err)
			}
			if !slices.Equal(ids(got), tt.want) {
				t.Errorf("Filter() = %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestDeterministicFilter_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []ScoredSession{scored("a", "Feline", 0.5), scored("b", "Equine", 0.9)}
	filter := NewDeterministicFilter(DefaultConfig().Rules)

	got, _, _ := filter.Filter(t.Context(), &Visitor{PracticeType: "equine"}, in)
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("Filter() = %v, want [b]", ids(got))
	}
	if in[0].ID != "a" || in[1].ID != "b" {
		t.Errorf("input reordered: %v", ids(in))
	}
}

func TestDeterministicFilter_Trace(t *testing.T) {
	t.Parallel()

	filter := NewDeterministicFilter(DefaultConfig().Rules)
	sessions := []ScoredSession{scored("n", "Nursing", 0.9), scored("f", "Feline", 0.8)}

	_, trace, _ := filter.Filter(t.Context(), &Visitor{PracticeType: "Equine", JobRole: "Vet Surgeon"}, sessions)
	if len(trace) != 2 {
		t.Fatalf("trace = %v, want 2 entries", trace)
	}
	if !strings.HasPrefix(trace[0], RulePracticeType) || !strings.HasPrefix(trace[1], RuleJobRole) {
		t.Errorf("trace order = %v, want practice type then job role", trace)
	}

	_, trace, _ = filter.Filter(t.Context(), &Visitor{PracticeType: "NA", JobRole: "Receptionist"}, sessions)
	if len(trace) != 0 {
		t.Errorf("trace = %v, want none for non-firing rules", trace)
	}
}

func TestDeterministicFilter_PriorityOrderMatters(t *testing.T) {
	t.Parallel()

	// The trace records families in the order they were applied.
	cfg := DefaultConfig().Rules
	cfg.Priority = []string{RuleJobRole, RulePracticeType}
	filter := NewDeterministicFilter(cfg)

	_, trace, _ := filter.Filter(t.Context(),
		&Visitor{PracticeType: "Small Animal", JobRole: "Nurse"},
		[]ScoredSession{scored("a", "Small Animal Nursing", 0.9), scored("b", "Equine Nursing", 0.8)},
	)
	if len(trace) != 2 || !strings.HasPrefix(trace[0], RuleJobRole) {
		t.Errorf("trace = %v, want job role first", trace)
	}
}

func TestSplitTags(t *testing.T) {
	t.Parallel()

	got := splitTags(" Equine ;; Small Animal;")
	want := []string{"equine", "small animal"}
	if !slices.Equal(got, want) {
		t.Errorf("splitTags() = %v, want %v", got, want)
	}
}
