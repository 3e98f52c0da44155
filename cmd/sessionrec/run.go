// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sessionrec/internal/config"
	"github.com/tomtom215/sessionrec/internal/logging"
	"github.com/tomtom215/sessionrec/internal/metrics"
	"github.com/tomtom215/sessionrec/internal/recommend"
)

type runOptions struct {
	visitors []string
	limit    int
	onlyNew  bool
	noGraph  bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate recommendations once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, cfg)
		},
	}

	cmd.Flags().StringSliceVar(&opts.visitors, "visitor", nil, "process only these badge ids (repeatable)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "process at most this many visitors")
	cmd.Flags().BoolVar(&opts.onlyNew, "only-new", false, "skip visitors that already have recommendations")
	cmd.Flags().BoolVar(&opts.noGraph, "no-graph", false, "do not write recommendations back to the store")
	return cmd
}

// apply overlays explicitly set flags on the loaded configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("visitor") {
		cfg.Recommend.VisitorIDs = o.visitors
	}
	if flags.Changed("limit") {
		cfg.Recommend.VisitorLimit = o.limit
	}
	if flags.Changed("only-new") {
		cfg.Recommend.OnlyNewVisitors = o.onlyNew
	}
	if o.noGraph {
		cfg.Output.Graph = false
	}
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeWithLog()

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	result, runErr := engine.Run(ctx)
	logSummary(&result.Stats)

	if path := cfg.Output.MetricsTextfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
		}
	}
	return runErr
}

func logSummary(stats *recommend.RunStatistics) {
	logging.Info().
		Str("run_id", stats.RunID).
		Dur("duration", stats.Duration).
		Int("visitors", stats.VisitorsProcessed).
		Int("with_recommendations", stats.VisitorsWithRecommendations).
		Int("without_recommendations", stats.VisitorsWithoutRecommendations).
		Int("recommendations", stats.TotalRecommendations).
		Int("cohort_visitors", stats.CohortVisitors).
		Int("control_visitors", stats.ControlVisitors).
		Int("errors", stats.Errors).
		Int("embedding_failures", stats.EmbeddingFailures).
		Int("graph_writes", stats.GraphWrites).
		Int("graph_write_failures", stats.GraphWriteFailures).
		Strs("files", stats.ExportedFiles).
		Msg("Run summary")
}
