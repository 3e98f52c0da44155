// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sessionrec/internal/metrics"
	"github.com/tomtom215/sessionrec/internal/recommend"
)

const vectorKeyPrefix = "vec:"

type cachedVector struct {
	Model     string    `json:"model"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// Cached stores vectors in BadgerDB keyed by model and text hash. Cache read
// and write failures are logged and fall through to the wrapped embedder.
type Cached struct {
	db     *badger.DB
	next   recommend.Embedder
	model  string
	logger zerolog.Logger
}

// OpenCache opens (or creates) a badger cache at path.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func OpenCache(path string, next recommend.Embedder, model string, logger zerolog.Logger) (*Cached, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}
	return &Cached{
		db:     db,
		next:   next,
		model:  model,
		logger: logger.With().Str("component", "embedding_cache").Logger(),
	}, nil
}

func (c *Cached) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return []byte(vectorKeyPrefix + hex.EncodeToString(sum[:]))
}

// Embed implements recommend.Embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	vec, err := c.get(key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Embedding cache read failed")
	}
	if vec != nil {
		metrics.RecordEmbedding("cache_hit", 0)
		return vec, nil
	}

	vec, err = c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.put(key, vec); err != nil {
		c.logger.Warn().Err(err).Msg("Embedding cache write failed")
	}
	return vec, nil
}

func (c *Cached) get(key []byte) ([]float32, error) {
	var entry cachedVector
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	return entry.Vector, nil
}

func (c *Cached) put(key []byte, vec []float32) error {
	data, err := json.Marshal(cachedVector{Model: c.model, Vector: vec, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Len counts cached vectors.
func (c *Cached) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(vectorKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (c *Cached) Close() error {
	return c.db.Close()
}
