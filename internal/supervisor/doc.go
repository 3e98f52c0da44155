// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

/*
Package supervisor runs serve mode under a suture supervisor tree.

	sessionrec (root)
	├── engine-layer
	│   └── run-service    scheduled and triggered recommendation runs
	└── api-layer
	    └── http-server    health, metrics and run endpoints

Services implement suture.Service: Serve blocks until the context is
canceled and returns ctx.Err() on a clean stop. Any other return, or a
panic, is logged through sutureslog and the service is restarted with
exponential backoff once FailureThreshold is exceeded.

Usage:

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddEngineService(runService)
	tree.AddAPIService(httpService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

The services themselves live in the services subpackage.
*/
package supervisor
