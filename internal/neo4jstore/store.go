// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package neo4jstore implements the recommendation graph store on Neo4j.
//
// The graph uses three node labels and two relationship types:
//
//	(:Visitor {badge_id})-[:ATTENDED]->(:PastSession {session_id})
//	(:Visitor {badge_id})-[:RECOMMENDED {similarity, generated_at}]->(:Session {session_id})
//
// Reads run in managed read transactions, and every per-visitor replace runs
// in a single managed write transaction so a failed or retried write never
// leaves a mix of old and new RECOMMENDED relationships.
package neo4jstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sessionrec/internal/config"
	"github.com/tomtom215/sessionrec/internal/metrics"
	"github.com/tomtom215/sessionrec/internal/recommend"
)

const backend = "neo4j"

// Store is a recommend.Store backed by a Neo4j database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   zerolog.Logger
}

var _ recommend.Store = (*Store)(nil)

// New connects to Neo4j, verifies connectivity and creates the uniqueness
// constraints the store relies on.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(ctx context.Context, cfg *config.Neo4jConfig, logger zerolog.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4jconfig.Config) {
			if cfg.MaxConnectionPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			}
			if cfg.ConnectTimeout > 0 {
				c.SocketConnectTimeout = cfg.ConnectTimeout
			}
		})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	s := &Store{
		driver:   driver,
		database: cfg.Database,
		logger:   logger.With().Str("component", "neo4jstore").Logger(),
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		s.closeQuietly(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", cfg.URI, err)
	}
	if err := s.createConstraints(ctx); err != nil {
		s.closeQuietly(ctx)
		return nil, err
	}

	s.logger.Info().Str("uri", cfg.URI).Str("database", cfg.Database).Msg("Connected to Neo4j")
	return s, nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases the driver's connection pool.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) closeQuietly(ctx context.Context) {
	if err := s.driver.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close neo4j driver")
	}
}

var constraintQueries = []string{
	"CREATE CONSTRAINT visitor_badge_id IF NOT EXISTS FOR (v:Visitor) REQUIRE v.badge_id IS UNIQUE",
	"CREATE CONSTRAINT session_id IF NOT EXISTS FOR (s:Session) REQUIRE s.session_id IS UNIQUE",
	"CREATE CONSTRAINT past_session_id IF NOT EXISTS FOR (p:PastSession) REQUIRE p.session_id IS UNIQUE",
}

func (s *Store) createConstraints(ctx context.Context) error {
	for _, query := range constraintQueries {
		if _, err := neo4j.ExecuteQuery(ctx, s.driver, query, nil,
			neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database)); err != nil {
			return fmt.Errorf("create constraint: %s: %w", query, err)
		}
	}
	return nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// read runs work in a managed read transaction and returns the collected
// records.
func (s *Store) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() {
		if err := session.Close(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to close read session")
		}
	}()

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

// write runs work in a managed write transaction. The driver retries
// transient failures; returning an error from work rolls the transaction back.
func (s *Store) write(ctx context.Context, work neo4j.ManagedTransactionWork) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer func() {
		if err := session.Close(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to close write session")
		}
	}()

	_, err := session.ExecuteWrite(ctx, work)
	return err
}

func observe(operation string, start time.Time, err *error) {
	metrics.RecordStoreQuery(backend, operation, time.Since(start), *err)
}
