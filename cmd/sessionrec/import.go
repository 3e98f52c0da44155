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
	"github.com/tomtom215/sessionrec/internal/dataset"
	"github.com/tomtom215/sessionrec/internal/logging"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dataset.json>",
		Short: "Load visitors, sessions and past attendance into the store",
		Long: `Import upserts a dataset document into the configured graph store.
Existing visitors keep their recommendation flags; attendance is merged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return importDataset(ctx, cfg, args[0])
		},
	}
}

func importDataset(ctx context.Context, cfg *config.Config, path string) error {
	ds, err := dataset.Load(path)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeWithLog()

	stats, err := a.store.Import(ctx, ds)
	if err != nil {
		return err
	}
	logging.Info().
		Str("path", path).
		Int("visitors", stats.Visitors).
		Int("sessions", stats.Sessions).
		Int("past_sessions", stats.PastSessions).
		Int("attendance", stats.Attendance).
		Msg("Dataset imported")
	return nil
}
