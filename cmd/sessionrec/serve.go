// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sessionrec/internal/api"
	"github.com/tomtom215/sessionrec/internal/config"
	"github.com/tomtom215/sessionrec/internal/logging"
	"github.com/tomtom215/sessionrec/internal/supervisor"
	"github.com/tomtom215/sessionrec/internal/supervisor/services"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run on a schedule and serve the ops HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeWithLog()

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	svcLogger := logging.Component("supervisor")
	runService := services.NewRunService(engine, services.RunServiceConfig{
		RunOnStartup: cfg.Server.RunOnStartup,
		Interval:     cfg.Server.Schedule,
	}, svcLogger)

	router := api.NewRouter(a.store, runService, api.RouterConfig{
		TriggerLimit:  cfg.Server.TriggerLimit,
		TriggerWindow: cfg.Server.TriggerWindow,
		StoreTimeout:  cfg.Recommendation().Timeouts.Query,
	}, a.logger)

	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddEngineService(runService)
	tree.AddAPIService(services.NewHTTPService(httpServer, addr, cfg.Server.ShutdownTimeout, svcLogger))

	logging.Info().
		Str("addr", addr).
		Dur("schedule", cfg.Server.Schedule).
		Bool("run_on_startup", cfg.Server.RunOnStartup).
		Msg("Starting supervisor tree")

	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}
