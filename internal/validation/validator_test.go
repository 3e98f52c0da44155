// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package validation

import (
	"strings"
	"testing"
)

type sample struct {
	Name     string   `validate:"required,max=5"`
	Score    float64  `validate:"gte=0,lte=1"`
	Backend  string   `validate:"oneof=duckdb neo4j"`
	IDs      []string `validate:"max=2,unique"`
	Endpoint string   `validate:"omitempty,url"`
}

func valid() sample {
	return sample{Name: "ok", Score: 0.3, Backend: "duckdb"}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*sample)
		wantTag string
		wantMsg string
	}{
		{"valid", func(*sample) {}, "", ""},
		{"required", func(s *sample) { s.Name = "" }, "required", "sample.Name is required"},
		{"string max", func(s *sample) { s.Name = "toolong" }, "max", "at most 5 characters"},
		{"upper bound", func(s *sample) { s.Score = 1.5 }, "lte", "less than or equal to 1"},
		{"oneof", func(s *sample) { s.Backend = "sqlite" }, "oneof", "one of: duckdb neo4j"},
		{"slice max", func(s *sample) { s.IDs = []string{"a", "b", "c"} }, "max", "at most 2 items"},
		{"unique", func(s *sample) { s.IDs = []string{"a", "a"} }, "unique", "duplicates"},
		{"url", func(s *sample) { s.Endpoint = "not a url" }, "url", "valid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(&s)

			err := ValidateStruct(&s)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if got := err.Errors()[0].Tag(); got != tt.wantTag {
				t.Errorf("tag = %q, want %q", got, tt.wantTag)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	s := valid()
	s.Name = ""
	apiErr := ValidateStruct(&s).ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" || apiErr.Details["field"] != "sample.Name" {
		t.Errorf("single error = %+v", apiErr)
	}

	s.Score = -1
	apiErr = ValidateStruct(&s).ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("multiple errors details = %+v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "; ") {
		t.Errorf("message = %q, want joined messages", apiErr.Message)
	}

	if got := (&RequestValidationError{}).ToAPIError().Message; got != "Validation failed" {
		t.Errorf("empty message = %q", got)
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}
