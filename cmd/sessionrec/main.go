// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Command sessionrec generates personalised session recommendations for
// event visitors and writes them back to the graph store.
//
// # Commands
//
//	sessionrec run                 one batch run, then exit
//	sessionrec serve               scheduled runs plus the ops HTTP API
//	sessionrec import <file.json>  load a dataset into the store
//
// # Configuration
//
// Configuration is loaded via koanf with layered sources (highest priority wins):
//   - Environment variables (NEO4J_URI, OPENAI_API_KEY, MIN_SCORE, ...)
//   - Config file (--config, CONFIG_PATH, ./sessionrec.yaml, /etc/sessionrec/config.yaml)
//   - Built-in defaults
//
// # Exit Codes
//
// run exits 0 when the run completed, even if some visitors failed; per-visitor
// failures are reported in the run statistics. It exits 1 on configuration or
// store errors and when the run was cancelled.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the active run. Visitors whose write already
// started finish that write; nothing is exported for a cancelled run.
package main

import (
	"os"

	"github.com/tomtom215/sessionrec/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.Error().Err(err).Msg("sessionrec failed")
		os.Exit(1)
	}
}
