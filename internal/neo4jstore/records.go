// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package neo4jstore

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

// Visitor node properties owned by the store. Anything else on the node is
// passed through as recommend.Visitor.Attributes.
var visitorProperties = map[string]bool{
	"badge_id":           true,
	"job_role":           true,
	"practice_type":      true,
	"organisation_type":  true,
	"country":            true,
	"job_title":          true,
	"attended_before":    true,
	"has_recommendation": true,
	"control_group":      true,
}

func visitorFromProps(props map[string]any) recommend.Visitor {
	v := recommend.Visitor{
		ID:                stringProp(props, "badge_id"),
		JobRole:           stringProp(props, "job_role"),
		PracticeType:      stringProp(props, "practice_type"),
		OrganisationType:  stringProp(props, "organisation_type"),
		Country:           stringProp(props, "country"),
		JobTitle:          stringProp(props, "job_title"),
		AttendedBefore:    boolProp(props, "attended_before"),
		HasRecommendation: boolProp(props, "has_recommendation"),
	}
	for key, val := range props {
		if visitorProperties[key] {
			continue
		}
		if v.Attributes == nil {
			v.Attributes = make(map[string]any)
		}
		v.Attributes[key] = val
	}
	return v
}

func recordVisitor(record *neo4j.Record) (recommend.Visitor, error) {
	val, _ := record.Get("props")
	props, ok := val.(map[string]any)
	if !ok {
		return recommend.Visitor{}, fmt.Errorf("visitor properties have type %T", val)
	}
	return visitorFromProps(props), nil
}

// attributeProps converts imported attributes to values Neo4j can store as
// properties. Scalars pass through and everything else is stored as JSON
// text.
func attributeProps(attrs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for key, val := range attrs {
		if visitorProperties[key] {
			continue
		}
		switch val.(type) {
		case nil:
			continue
		case string, bool, int, int64, float64:
			out[key] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("encode attribute %s: %w", key, err)
			}
			out[key] = string(b)
		}
	}
	return out, nil
}

func stringProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func boolProp(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func getString(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

func getBool(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return false
	}
	b, _ := val.(bool)
	return b
}

func getFloat64(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	switch n := val.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func getInt(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if n, ok := val.(int64); ok {
		return int(n)
	}
	return 0
}

func getTime(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	t, _ := val.(time.Time)
	return t
}

// getVector reads a list-of-float property. Neo4j returns lists as []any of
// float64 (or int64 for integral literals written by hand).
func getVector(record *neo4j.Record, key string) ([]float32, error) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil, nil
	}
	return toVector(val)
}

func toVector(val any) ([]float32, error) {
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("embedding has type %T, want list", val)
	}
	out := make([]float32, len(list))
	for i, item := range list {
		switch n := item.(type) {
		case float64:
			out[i] = float32(n)
		case int64:
			out[i] = float32(n)
		default:
			return nil, fmt.Errorf("embedding element %d has type %T", i, item)
		}
	}
	return out, nil
}

// fromVector widens a vector for the driver's packstream encoder. An empty
// vector becomes null so the property is removed.
func fromVector(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, f := range vec {
		out[i] = float64(f)
	}
	return out
}
