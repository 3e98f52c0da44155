// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"math"
	"math/rand"
	"slices"
)

// Control group values written to the visitor node.
const (
	Treatment = 0
	Control   = 1
)

// AssignControlGroup splits visitorIDs into control and treatment.
// Exactly floor(percentage*n) visitors go to control. The ids are sorted
// before a seeded shuffle, so the assignment depends only on the id set,
// the percentage and the seed. Disabled configurations assign everyone to
// treatment.
func AssignControlGroup(visitorIDs []string, cfg ControlGroupConfig) map[string]int {
	ids := slices.Clone(visitorIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	assignment := make(map[string]int, len(ids))
	for _, id := range ids {
		assignment[id] = Treatment
	}
	if !cfg.Enabled || cfg.Percentage <= 0 || len(ids) == 0 {
		return assignment
	}

	// Tolerate float error so 0.2*10 yields 2, not 1.
	n := int(math.Floor(cfg.Percentage*float64(len(ids)) + 1e-9))
	n = min(n, len(ids))

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // math/rand is fine for reproducible group assignment
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	for _, id := range ids[:n] {
		assignment[id] = Control
	}
	return assignment
}
