// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package database

import (
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
)

// encodeVector renders v as a list literal for CAST(? AS FLOAT[]). Empty
// vectors are stored as NULL.
func encodeVector(v []float32) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode vector: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeVector converts a scanned FLOAT[] value.
func decodeVector(v any) ([]float32, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected vector type %T", v)
	}
	out := make([]float32, len(list))
	for i, x := range list {
		switch f := x.(type) {
		case float32:
			out[i] = f
		case float64:
			out[i] = float32(f)
		case nil:
			return nil, fmt.Errorf("vector element %d is NULL", i)
		default:
			return nil, fmt.Errorf("unexpected vector element type %T", x)
		}
	}
	return out, nil
}

func encodeAttributes(attrs map[string]any) (sql.NullString, error) {
	if len(attrs) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode attributes: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeAttributes(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(s.String), &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}
