// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultNeo4jImage is the Neo4j Community image used for store tests.
	DefaultNeo4jImage = "neo4j:5-community"

	// DefaultBoltPort is the Bolt protocol port.
	DefaultBoltPort = "7687"

	// DefaultNeo4jPassword is the initial password set through NEO4J_AUTH.
	DefaultNeo4jPassword = "sessionrec-test"
)

// Neo4jContainer represents a running Neo4j container for testing.
type Neo4jContainer struct {
	testcontainers.Container
	URI      string
	Username string
	Password string
}

// Neo4jOption configures the Neo4j container.
type Neo4jOption func(*neo4jConfig)

type neo4jConfig struct {
	image        string
	password     string
	startTimeout time.Duration
}

// WithNeo4jImage sets a custom Neo4j Docker image.
func WithNeo4jImage(image string) Neo4jOption {
	return func(c *neo4jConfig) {
		c.image = image
	}
}

// WithStartTimeout sets the timeout for waiting for Neo4j to accept Bolt
// connections.
func WithStartTimeout(timeout time.Duration) Neo4jOption {
	return func(c *neo4jConfig) {
		c.startTimeout = timeout
	}
}

// NewNeo4jContainer creates and starts a Neo4j container.
//
// Example:
//
//	neo, err := testinfra.NewNeo4jContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, neo)
//
//	store, err := neo4jstore.New(ctx, &config.Neo4jConfig{
//	    URI: neo.URI, Username: neo.Username, Password: neo.Password,
//	}, zerolog.Nop())
func NewNeo4jContainer(ctx context.Context, opts ...Neo4jOption) (*Neo4jContainer, error) {
	cfg := &neo4jConfig{
		image:        DefaultNeo4jImage,
		password:     DefaultNeo4jPassword,
		startTimeout: 2 * time.Minute,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultBoltPort + "/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH":                         "neo4j/" + cfg.password,
			"NEO4J_server_memory_heap_max__size": "512m",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultBoltPort+"/tcp"),
			wait.ForLog("Started."),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, DefaultBoltPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &Neo4jContainer{
		Container: container,
		URI:       fmt.Sprintf("bolt://%s:%s", host, port.Port()),
		Username:  "neo4j",
		Password:  cfg.password,
	}, nil
}
