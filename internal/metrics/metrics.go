// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package metrics exposes Prometheus instrumentation for recommendation runs,
// the graph store, the embedding client and the ops HTTP server.
//
// Serve mode publishes the default registry at /metrics. Batch runs can write
// it to a node-exporter textfile with WriteTextfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run Metrics
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessionrec_run_duration_seconds",
			Help:    "Duration of recommendation runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionrec_runs_total",
			Help: "Total number of recommendation runs by outcome",
		},
		[]string{"outcome"}, // "success", "failed"
	)

	LastSuccessfulRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessionrec_last_successful_run_timestamp_seconds",
			Help: "Unix time of the last run that finished without a fatal error",
		},
	)

	VisitorsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionrec_visitors_processed_total",
			Help: "Total number of visitors processed by outcome and strategy",
		},
		[]string{"outcome", "strategy"}, // outcome: "recommended", "empty", "failed"
	)

	VisitorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessionrec_visitor_duration_seconds",
			Help:    "Per-visitor candidate generation, scoring and filtering time",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecommendationsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessionrec_recommendations_generated_total",
			Help: "Total number of recommendations produced",
		},
	)

	CohortRelaxed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessionrec_cohort_relaxed_total",
			Help: "Cohort lookups that fell back to embedding-only ranking",
		},
	)

	GuardrailViolations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessionrec_guardrail_violations",
			Help: "Visitors with guardrail findings in the last run",
		},
		[]string{"kind"}, // "over_limit", "overlap"
	)

	ControlGroupVisitors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessionrec_control_group_visitors",
			Help: "Visitors withheld as control in the last run",
		},
	)

	// Graph Store Metrics
	GraphWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionrec_graph_writes_total",
			Help: "Per-visitor relationship replacements by outcome",
		},
		[]string{"outcome"}, // "success", "retried", "failed"
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessionrec_store_query_duration_seconds",
			Help:    "Duration of graph store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionrec_store_query_errors_total",
			Help: "Total number of graph store errors",
		},
		[]string{"backend", "operation"},
	)

	// Embedding Metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionrec_embedding_requests_total",
			Help: "Embedding lookups by result",
		},
		[]string{"result"}, // "success", "error", "cache_hit", "circuit_open"
	)

	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessionrec_embedding_duration_seconds",
			Help:    "Duration of embedding service calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessionrec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP Metrics (serve mode)
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessionrec_http_request_duration_seconds",
			Help:    "Duration of ops HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordStoreQuery records a graph store operation.
func RecordStoreQuery(backend, operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordEmbedding records one embedding lookup. result is one of success,
// error, cache_hit or circuit_open.
func RecordEmbedding(result string, duration time.Duration) {
	EmbeddingRequests.WithLabelValues(result).Inc()
	if result == "success" || result == "error" {
		EmbeddingDuration.Observe(duration.Seconds())
	}
}

// SetCircuitBreakerState publishes a breaker state (0 closed, 1 half-open, 2 open).
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordAPIRequest records an ops HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
