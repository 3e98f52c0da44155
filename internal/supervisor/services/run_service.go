// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package services provides suture services for serve mode.
package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

// Engine runs one recommendation pass.
type Engine interface {
	Run(ctx context.Context) (*recommend.RunResult, error)
}

// RunServiceConfig configures scheduled runs.
type RunServiceConfig struct {
	// RunOnStartup triggers a run when the service starts.
	RunOnStartup bool

	// Interval is the time between scheduled runs. 0 disables the schedule;
	// runs then only happen through Trigger.
	Interval time.Duration

	// Timeout bounds a single run. 0 means no limit.
	Timeout time.Duration
}

// RunService drives the engine on a schedule and on demand, and keeps the
// most recent result for the ops API.
type RunService struct {
	engine  Engine
	config  RunServiceConfig
	logger  zerolog.Logger
	trigger chan struct{}
	running atomic.Bool

	mu        sync.RWMutex
	latest    *recommend.RunResult
	latestErr error
}

// NewRunService creates the service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRunService(engine Engine, cfg RunServiceConfig, logger zerolog.Logger) *RunService {
	return &RunService{
		engine:  engine,
		config:  cfg,
		logger:  logger.With().Str("service", "run").Logger(),
		trigger: make(chan struct{}, 1),
	}
}

// Serve implements suture.Service. Runs execute on the Serve goroutine, so
// at most one is active at a time; cancelling ctx cancels the active run.
func (s *RunService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("Run service starting")

	if s.config.RunOnStartup {
		s.runOnce(ctx, "startup")
	}

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Run service shutting down")
			return ctx.Err()
		case <-tick:
			s.runOnce(ctx, "schedule")
		case <-s.trigger:
			s.runOnce(ctx, "trigger")
		}
	}
}

// Trigger queues a run. It returns recommend.ErrRunInProgress while a run
// is active or another trigger is already queued.
func (s *RunService) Trigger() error {
	if s.running.Load() {
		return recommend.ErrRunInProgress
	}
	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return recommend.ErrRunInProgress
	}
}

// Running reports whether a run is active.
func (s *RunService) Running() bool {
	return s.running.Load()
}

// Latest returns the most recent run result and its error. The result is
// nil until the first run completes.
func (s *RunService) Latest() (*recommend.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latestErr
}

func (s *RunService) runOnce(ctx context.Context, reason string) {
	s.running.Store(true)
	defer s.running.Store(false)

	runCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	s.logger.Info().Str("reason", reason).Msg("Recommendation run triggered")
	result, err := s.engine.Run(runCtx)
	if err != nil {
		s.logger.Warn().Err(err).Str("reason", reason).Msg("Recommendation run failed")
	}

	s.mu.Lock()
	s.latest, s.latestErr = result, err
	s.mu.Unlock()
}

func (s *RunService) String() string {
	return "run-service"
}
