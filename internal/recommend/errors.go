// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package recommend

import (
	"context"
	"errors"
)

var (
	// ErrCatalogUnavailable is fatal: the catalog could not be read or no
	// session carries an embedding.
	ErrCatalogUnavailable = errors.New("session catalog unavailable")

	// ErrVisitorNotFound means the visitor id has no node in the store.
	ErrVisitorNotFound = errors.New("visitor not found")

	// ErrEmbeddingService wraps failures of the embedding source.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrGraphWrite wraps failed relationship writes.
	ErrGraphWrite = errors.New("graph write failed")

	// ErrRunInProgress is returned when Run is called while another run is active.
	ErrRunInProgress = errors.New("recommendation run already in progress")
)

// Error kinds used in RunStatistics.ErrorsByKind.
const (
	KindVisitorNotFound = "visitor_not_found"
	KindEmbedding       = "embedding_service"
	KindGraphWrite      = "graph_write"
	KindTimeout         = "timeout"
	KindCanceled        = "canceled"
	KindStore           = "store"
)

// ErrorKind classifies err for statistics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrVisitorNotFound):
		return KindVisitorNotFound
	case errors.Is(err, ErrGraphWrite):
		return KindGraphWrite
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrEmbeddingService):
		return KindEmbedding
	default:
		return KindStore
	}
}
