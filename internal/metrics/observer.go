// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

// RunObserver feeds engine events into the package collectors.
type RunObserver struct{}

var _ recommend.Observer = RunObserver{}

// VisitorProcessed implements recommend.Observer.
func (RunObserver) VisitorProcessed(res *recommend.VisitorResult, elapsed time.Duration) {
	outcome := "recommended"
	switch {
	case res.Failed():
		outcome = "failed"
	case len(res.Recommendations) == 0:
		outcome = "empty"
	}
	strategy := string(res.Strategy)
	if strategy == "" {
		strategy = "unknown"
	}

	VisitorsProcessed.WithLabelValues(outcome, strategy).Inc()
	VisitorDuration.Observe(elapsed.Seconds())
	RecommendationsGenerated.Add(float64(len(res.Recommendations)))
	if res.CohortRelaxed {
		CohortRelaxed.Inc()
	}
}

// GraphWrite implements recommend.Observer.
func (RunObserver) GraphWrite(attempts int, err error) {
	switch {
	case err != nil:
		GraphWrites.WithLabelValues("failed").Inc()
	case attempts > 1:
		GraphWrites.WithLabelValues("retried").Inc()
	default:
		GraphWrites.WithLabelValues("success").Inc()
	}
}

// RunCompleted implements recommend.Observer.
func (RunObserver) RunCompleted(stats *recommend.RunStatistics) {
	RunDuration.Observe(stats.Duration.Seconds())
	GuardrailViolations.WithLabelValues("over_limit").Set(float64(stats.Guardrail.OverLimitVisitors))
	GuardrailViolations.WithLabelValues("overlap").Set(float64(stats.Guardrail.OverlapVisitors))
	ControlGroupVisitors.Set(float64(stats.ControlVisitors))

	if stats.Fatal != "" {
		RunsTotal.WithLabelValues("failed").Inc()
		return
	}
	RunsTotal.WithLabelValues("success").Inc()
	LastSuccessfulRun.Set(float64(stats.FinishedAt.Unix()))
}

// WriteTextfile writes the default registry in the node-exporter textfile
// format. The file is replaced atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
