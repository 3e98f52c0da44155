// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/sessionrec/internal/config"
	"github.com/tomtom215/sessionrec/internal/database"
	"github.com/tomtom215/sessionrec/internal/dataset"
	"github.com/tomtom215/sessionrec/internal/embedding"
	"github.com/tomtom215/sessionrec/internal/export"
	"github.com/tomtom215/sessionrec/internal/logging"
	"github.com/tomtom215/sessionrec/internal/metrics"
	"github.com/tomtom215/sessionrec/internal/neo4jstore"
	"github.com/tomtom215/sessionrec/internal/recommend"
)

const storeCloseTimeout = 10 * time.Second

// graphStore is what every command needs from a backend.
type graphStore interface {
	recommend.Store
	Ping(ctx context.Context) error
	Recommendations(ctx context.Context, visitorID string) ([]recommend.Recommendation, error)
	Flags(ctx context.Context, visitorID string) (recommend.VisitorFlags, error)
	Import(ctx context.Context, ds *dataset.Dataset) (dataset.Stats, error)
}

var (
	_ graphStore = (*database.DB)(nil)
	_ graphStore = (*neo4jstore.Store)(nil)
)

// app holds the resources shared by the commands.
type app struct {
	cfg    *config.Config
	store  graphStore
	embed  *embedding.Client
	logger zerolog.Logger

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.Logger()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendNeo4j:
		s, err := neo4jstore.New(ctx, &a.cfg.Store.Neo4j, a.logger)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
			defer cancel()
			return s.Close(closeCtx)
		})
	default:
		db, err := database.New(&a.cfg.Store.DuckDB)
		if err != nil {
			return fmt.Errorf("open duckdb: %w", err)
		}
		a.store = db
		a.closers = append(a.closers, db.Close)
	}
	logging.Info().Str("backend", a.cfg.Store.Backend).Msg("Graph store ready")
	return nil
}

// newEngine builds the engine with its embedding chain, exporter and
// metrics observer.
func (a *app) newEngine() (*recommend.Engine, error) {
	client, err := embedding.New(a.cfg.EmbeddingClient(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	a.embed = client
	a.closers = append(a.closers, client.Close)

	engine, err := recommend.NewEngine(a.cfg.Recommendation(), a.store, client.Embedder(), a.logger)
	if err != nil {
		return nil, err
	}

	out := a.cfg.Output
	if out.JSON || out.CSV {
		engine.SetExporter(export.New(export.Config{Dir: out.Dir, JSON: out.JSON, CSV: out.CSV}, a.logger))
	}
	engine.SetObserver(metrics.RunObserver{})
	return engine, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) closeWithLog() {
	if err := a.close(); err != nil {
		logging.Error().Err(err).Msg("Error releasing resources")
	}
}
