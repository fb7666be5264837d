// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package apicache caches upstream GET responses in a cache partition and
// keeps a side index of cached keys so they can be listed and invalidated.
package apicache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/cache"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// IndexKey is the reserved key holding the index in the cache partition.
const IndexKey = "index"

// IndexEntry records what a cached key was computed from.
type IndexEntry struct {
	Path  string     `json:"path"`
	Query url.Values `json:"query,omitempty"`
}

// Key returns the cache key for path and query. Query parameters are
// canonicalized by name so parameter order does not matter.
func Key(path string, query url.Values) string {
	return digest.FromString(path + "?" + query.Encode()).Encoded()
}

// Reader is a read-through cache in front of an upstream client's GET.
type Reader struct {
	client    apiclient.Client
	store     cache.Store
	partition string
	metrics   *Metrics
	inflight  singleflight.Group

	mu     sync.Mutex
	loaded bool
	index  map[string]IndexEntry
}

// Option configures a Reader.
type Option func(*Reader)

// WithMetrics records hits and misses on m.
func WithMetrics(m *Metrics) Option {
	return func(r *Reader) {
		r.metrics = m
	}
}

// NewReader creates a Reader storing entries in partition of store.
func NewReader(client apiclient.Client, store cache.Store, partition string, opts ...Option) *Reader {
	r := &Reader{
		client:    client,
		store:     store,
		partition: partition,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the cached response for path and query, calling the upstream
// on a miss. Concurrent misses for the same key share one upstream call.
// Upstream errors are returned and nothing is cached.
func (r *Reader) Get(ctx context.Context, path string, query url.Values) (*jsonapi.Document, error) {
	key := Key(path, query)
	missed := false

	raw, err := r.store.Remember(ctx, key, r.partition, func(ctx context.Context) ([]byte, error) {
		missed = true
		v, err, _ := r.inflight.Do(key, func() (any, error) {
			doc, err := r.client.Get(ctx, path, query, nil)
			if err != nil {
				return nil, err
			}
			return json.Marshal(doc)
		})
		if err != nil {
			return nil, err
		}
		return v.([]byte), nil
	})
	if err != nil {
		return nil, err
	}

	if missed {
		r.metrics.observe(r.partition, resultMiss)
		if err := r.addToIndex(ctx, key, IndexEntry{Path: path, Query: query}); err != nil {
			return nil, err
		}
	} else {
		r.metrics.observe(r.partition, resultHit)
	}

	doc, err := jsonapi.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("cached entry %s: %w", key, err)
	}
	return doc, nil
}

// Index returns a copy of the index, loading it if needed.
func (r *Reader) Index(ctx context.Context) (map[string]IndexEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]IndexEntry, len(r.index))
	for k, v := range r.index {
		out[k] = v
	}
	return out, nil
}

// Keys returns the indexed keys, sorted.
func (r *Reader) Keys(ctx context.Context) ([]string, error) {
	index, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Invalidate removes one cached entry and its index record.
func (r *Reader) Invalidate(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, key, r.partition); err != nil {
		return err
	}
	if _, ok := r.index[key]; !ok {
		return nil
	}
	delete(r.index, key)
	return r.persistLocked(ctx)
}

// Clear removes every indexed entry and the index itself. It returns the
// number of entries removed.
func (r *Reader) Clear(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return 0, err
	}
	removed := 0
	for key := range r.index {
		if err := r.store.Delete(ctx, key, r.partition); err != nil {
			return removed, err
		}
		delete(r.index, key)
		removed++
	}
	if err := r.store.Delete(ctx, IndexKey, r.partition); err != nil {
		return removed, err
	}
	logger.Infow("cleared API cache", "partition", r.partition, "entries", removed)
	return removed, nil
}

// addToIndex records key unless it is already present.
func (r *Reader) addToIndex(ctx context.Context, key string, entry IndexEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	if _, exists := r.index[key]; exists {
		return nil
	}
	r.index[key] = entry
	return r.persistLocked(ctx)
}

func (r *Reader) loadLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	raw, found, err := r.store.Read(ctx, IndexKey, r.partition)
	if err != nil {
		return fmt.Errorf("failed to read cache index: %w", err)
	}
	index := map[string]IndexEntry{}
	if found {
		if err := json.Unmarshal(raw, &index); err != nil {
			logger.Warnw("discarding unreadable cache index", "partition", r.partition, "error", err)
			index = map[string]IndexEntry{}
		}
	}
	r.index = index
	r.loaded = true
	return nil
}

func (r *Reader) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(r.index)
	if err != nil {
		return err
	}
	if err := r.store.Write(ctx, IndexKey, raw, r.partition); err != nil {
		return fmt.Errorf("failed to write cache index: %w", err)
	}
	return nil
}
