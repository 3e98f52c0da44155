// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package testinfra starts service containers for integration tests.
//
// It wraps testcontainers-go so store tests run against a real Neo4j server
// instead of a mock of the Bolt protocol:
//
//	func TestStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    neo, err := testinfra.NewNeo4jContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, neo)
//	    // connect with neo.URI, neo.Username, neo.Password
//	}
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/neo4jstore/...
package testinfra
