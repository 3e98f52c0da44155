// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

type mockStore struct {
	pingErr error
	flags   map[string]recommend.VisitorFlags
	recs    map[string][]recommend.Recommendation
	recsErr error
}

func (m *mockStore) Ping(context.Context) error { return m.pingErr }

func (m *mockStore) Recommendations(_ context.Context, id string) ([]recommend.Recommendation, error) {
	if m.recsErr != nil {
		return nil, m.recsErr
	}
	return m.recs[id], nil
}

func (m *mockStore) Flags(_ context.Context, id string) (recommend.VisitorFlags, error) {
	f, ok := m.flags[id]
	if !ok {
		return f, fmt.Errorf("%w: %s", recommend.ErrVisitorNotFound, id)
	}
	return f, nil
}

type mockRunner struct {
	mu         sync.Mutex
	triggerErr error
	triggers   int
	running    bool
	latest     *recommend.RunResult
	latestErr  error
}

func (m *mockRunner) Trigger() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.triggerErr != nil {
		return m.triggerErr
	}
	m.triggers++
	return nil
}

func (m *mockRunner) Running() bool { return m.running }

func (m *mockRunner) Latest() (*recommend.RunResult, error) { return m.latest, m.latestErr }

func newTestRouter(store *mockStore, runner *mockRunner, limit int) http.Handler {
	return NewRouter(store, runner, RouterConfig{TriggerLimit: limit, TriggerWindow: time.Minute}, zerolog.Nop())
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, resp
}

// decodeData re-decodes the envelope's data field into out.
func decodeData(t *testing.T, resp APIResponse, out interface{}) {
	t.Helper()
	b, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pingErr error
		want    int
	}{
		{"store reachable", nil, http.StatusOK},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestRouter(&mockStore{pingErr: tt.pingErr}, &mockRunner{running: true}, 5)

			rec, resp := do(t, h, http.MethodGet, "/healthz", "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if resp.Success != (tt.pingErr == nil) {
				t.Errorf("success = %v", resp.Success)
			}
			if resp.Meta == nil || resp.Meta.RequestID == "" {
				t.Error("missing request id in meta")
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	h := newTestRouter(&mockStore{}, &mockRunner{}, 5)

	// Generate at least one observation first.
	do(t, h, http.MethodGet, "/healthz", "")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sessionrec_http_request_duration_seconds") {
		t.Error("API request histogram missing from /metrics")
	}
}

func TestLatestRun(t *testing.T) {
	t.Parallel()

	t.Run("no run yet", func(t *testing.T) {
		t.Parallel()
		rec, resp := do(t, newTestRouter(&mockStore{}, &mockRunner{}, 5), http.MethodGet, "/api/v1/runs/latest", "")
		if rec.Code != http.StatusNotFound || resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
			t.Errorf("status = %d, error = %+v", rec.Code, resp.Error)
		}
	})

	t.Run("completed run", func(t *testing.T) {
		t.Parallel()
		runner := &mockRunner{latest: &recommend.RunResult{Stats: recommend.RunStatistics{RunID: "run-7", VisitorsProcessed: 12}}}
		rec, resp := do(t, newTestRouter(&mockStore{}, runner, 5), http.MethodGet, "/api/v1/runs/latest", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var summary RunSummary
		decodeData(t, resp, &summary)
		if summary.Statistics == nil || summary.Statistics.RunID != "run-7" || summary.Statistics.VisitorsProcessed != 12 {
			t.Errorf("summary = %+v", summary)
		}
		if summary.Error != "" {
			t.Errorf("error = %q", summary.Error)
		}
	})

	t.Run("failed run", func(t *testing.T) {
		t.Parallel()
		runner := &mockRunner{latest: &recommend.RunResult{}, latestErr: errors.New("catalog empty")}
		_, resp := do(t, newTestRouter(&mockStore{}, runner, 5), http.MethodGet, "/api/v1/runs/latest", "")
		var summary RunSummary
		decodeData(t, resp, &summary)
		if summary.Error != "catalog empty" {
			t.Errorf("summary.Error = %q", summary.Error)
		}
	})
}

func TestTriggerRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		triggerErr error
		wantStatus int
		wantCode   string
	}{
		{"no body", "", nil, http.StatusAccepted, ""},
		{"with reason", `{"reason":"catalog refreshed"}`, nil, http.StatusAccepted, ""},
		{"run active", "", recommend.ErrRunInProgress, http.StatusConflict, ErrCodeConflict},
		{"invalid json", `{"reason":`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"reason too long", `{"reason":"` + strings.Repeat("x", 201) + `"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"trigger failure", "", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &mockRunner{triggerErr: tt.triggerErr}
			rec, resp := do(t, newTestRouter(&mockStore{}, runner, 100), http.MethodPost, "/api/v1/runs", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" && (resp.Error == nil || resp.Error.Code != tt.wantCode) {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
			if tt.wantStatus == http.StatusAccepted && runner.triggers != 1 {
				t.Errorf("triggers = %d, want 1", runner.triggers)
			}
		})
	}
}

func TestTriggerRun_RateLimited(t *testing.T) {
	t.Parallel()
	runner := &mockRunner{}
	h := newTestRouter(&mockStore{}, runner, 2)

	for i := 0; i < 2; i++ {
		if rec, _ := do(t, h, http.MethodPost, "/api/v1/runs", ""); rec.Code != http.StatusAccepted {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec, resp := do(t, h, http.MethodPost, "/api/v1/runs", "")
	if rec.Code != http.StatusTooManyRequests || resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("third request status = %d, error = %+v", rec.Code, resp.Error)
	}

	// Reads are not limited.
	if rec, _ := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestVisitorRecommendations(t *testing.T) {
	t.Parallel()
	generated := time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC)
	store := &mockStore{
		flags: map[string]recommend.VisitorFlags{
			"V1": {HasRecommendation: true},
			"V2": {HasRecommendation: true, ControlGroup: 1},
		},
		recs: map[string][]recommend.Recommendation{
			"V1": {
				{SessionID: "S1", Similarity: 0.91, GeneratedAt: generated},
				{SessionID: "S2", Similarity: 0.72, GeneratedAt: generated},
			},
		},
	}
	h := newTestRouter(store, &mockRunner{}, 5)

	t.Run("treatment visitor", func(t *testing.T) {
		t.Parallel()
		rec, resp := do(t, h, http.MethodGet, "/api/v1/visitors/V1/recommendations", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got VisitorRecommendations
		decodeData(t, resp, &got)
		if got.VisitorID != "V1" || !got.HasRecommendation || got.ControlGroup {
			t.Errorf("flags = %+v", got)
		}
		if len(got.Recommendations) != 2 || got.Recommendations[0].SessionID != "S1" || !got.Recommendations[0].GeneratedAt.Equal(generated) {
			t.Errorf("recommendations = %+v", got.Recommendations)
		}
	})

	t.Run("control visitor has no edges", func(t *testing.T) {
		t.Parallel()
		_, resp := do(t, h, http.MethodGet, "/api/v1/visitors/V2/recommendations", "")
		var got VisitorRecommendations
		decodeData(t, resp, &got)
		if !got.ControlGroup || got.Recommendations == nil || len(got.Recommendations) != 0 {
			t.Errorf("control visitor = %+v", got)
		}
	})

	t.Run("unknown visitor", func(t *testing.T) {
		t.Parallel()
		rec, _ := do(t, h, http.MethodGet, "/api/v1/visitors/NOPE/recommendations", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestVisitorRecommendations_StoreError(t *testing.T) {
	t.Parallel()
	store := &mockStore{
		flags:   map[string]recommend.VisitorFlags{"V1": {}},
		recsErr: errors.New("query failed"),
	}
	rec, resp := do(t, newTestRouter(store, &mockRunner{}, 5), http.MethodGet, "/api/v1/visitors/V1/recommendations", "")
	if rec.Code != http.StatusInternalServerError || resp.Error == nil || resp.Error.Code != ErrCodeDatabaseError {
		t.Errorf("status = %d, error = %+v", rec.Code, resp.Error)
	}
	if strings.Contains(rec.Body.String(), "query failed") {
		t.Error("store error leaked to client")
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	h := newTestRouter(&mockStore{}, &mockRunner{}, 5)

	if rec, _ := do(t, h, http.MethodGet, "/api/v1/nothing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodDelete, "/api/v1/runs", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
