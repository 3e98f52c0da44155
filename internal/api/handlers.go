// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/sessionrec/internal/recommend"
	"github.com/tomtom215/sessionrec/internal/validation"
)

const maxTriggerBody = 4 << 10

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	RunActive  bool   `json:"run_active"`
	StoreError string `json:"store_error,omitempty"`
}

// RunSummary describes the most recent run.
type RunSummary struct {
	Running    bool                     `json:"running"`
	Statistics *recommend.RunStatistics `json:"statistics,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// TriggerRequest is the optional POST /api/v1/runs body.
type TriggerRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=200"`
}

// TriggerResponse acknowledges a queued run.
type TriggerResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// RecommendationView is one written RECOMMENDED relationship.
type RecommendationView struct {
	SessionID   string    `json:"session_id"`
	Similarity  float64   `json:"similarity"`
	GeneratedAt time.Time `json:"generated_at"`
}

// VisitorRecommendations is a visitor's written state in the graph store.
type VisitorRecommendations struct {
	VisitorID         string               `json:"visitor_id"`
	HasRecommendation bool                 `json:"has_recommendation"`
	ControlGroup      bool                 `json:"control_group"`
	Recommendations   []RecommendationView `json:"recommendations"`
}

// Health reports store reachability. It returns 503 when the store ping
// fails so orchestrators can restart or route around the instance.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.storeTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Store: "ok", RunActive: h.runner.Running()}
	rw := NewResponseWriter(w, r)

	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = "unreachable"
		resp.StoreError = err.Error()
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "store unreachable", resp)
		return
	}
	rw.Success(resp)
}

// LatestRun returns the statistics of the most recent run.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	result, err := h.runner.Latest()
	if result == nil && err == nil {
		rw.NotFound("no run has completed yet")
		return
	}

	summary := RunSummary{Running: h.runner.Running()}
	if result != nil {
		stats := result.Stats
		summary.Statistics = &stats
	}
	if err != nil {
		summary.Error = err.Error()
	}
	rw.Success(summary)
}

// TriggerRun queues a run. It answers 202 when queued and 409 while a run
// is active or already queued.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req TriggerRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTriggerBody))
	if err != nil {
		rw.BadRequest("request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			rw.BadRequest("invalid JSON body")
			return
		}
		if verr := validation.ValidateStruct(&req); verr != nil {
			apiErr := verr.ToAPIError()
			rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
			return
		}
	}

	if err := h.runner.Trigger(); err != nil {
		if errors.Is(err, recommend.ErrRunInProgress) {
			rw.Conflict("a recommendation run is already active or queued")
			return
		}
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "failed to trigger run")
		return
	}

	h.logger.Info().Str("reason", req.Reason).Msg("Run triggered via API")
	rw.Accepted(TriggerResponse{Status: "queued", Reason: req.Reason})
}

// VisitorRecommendations returns what the last write put in the graph
// store for one visitor.
func (h *Handler) VisitorRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.storeTimeout)
	defer cancel()

	flags, err := h.store.Flags(ctx, id)
	if err != nil {
		if errors.Is(err, recommend.ErrVisitorNotFound) {
			rw.NotFound("visitor not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	recs, err := h.store.Recommendations(ctx, id)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	resp := VisitorRecommendations{
		VisitorID:         id,
		HasRecommendation: flags.HasRecommendation,
		ControlGroup:      flags.ControlGroup == 1,
		Recommendations:   make([]RecommendationView, 0, len(recs)),
	}
	for _, rec := range recs {
		resp.Recommendations = append(resp.Recommendations, RecommendationView(rec))
	}
	rw.Success(resp)
}
