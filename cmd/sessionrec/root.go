// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/sessionrec/internal/config"
	"github.com/tomtom215/sessionrec/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "sessionrec",
		Short:         "Personalised session recommendations for event visitors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newImportCmd(opts),
	)

	return cmd
}

// load reads configuration and initialises the global logger.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadWithKoanf(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logging.Init(cfg.Logging.Logging())

	logging.Info().
		Str("store", cfg.Store.Backend).
		Str("embedding", cfg.Embedding.Provider).
		Bool("graph_output", cfg.Output.Graph).
		Bool("control_group", cfg.ControlGroup.Enabled).
		Msg("Configuration loaded")
	return cfg, nil
}
