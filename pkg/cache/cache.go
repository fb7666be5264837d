// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cache provides a partitioned key/value cache. Partitions are named
// backends; a request for an unknown partition is served by the default one.
package cache

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=cache.go Store,Backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stacklok/cmsproxy/pkg/logger"
)

// DefaultPartition is used when no partition is configured.
const DefaultPartition = "default"

// Producer computes a value on a cache miss.
type Producer func(ctx context.Context) ([]byte, error)

// Store is the cache surface used by the rest of cmsproxy.
type Store interface {
	// Read returns the value stored under key and whether it was found.
	Read(ctx context.Context, key, partition string) ([]byte, bool, error)
	// Write stores value under key.
	Write(ctx context.Context, key string, value []byte, partition string) error
	// Delete removes key. Removing a missing key is not an error.
	Delete(ctx context.Context, key, partition string) error
	// Remember returns the cached value, or calls producer and stores its
	// result. Producer errors are returned and nothing is stored.
	Remember(ctx context.Context, key, partition string, producer Producer) ([]byte, error)
}

// Backend is a single partition's storage.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Manager routes Store calls to partition backends.
type Manager struct {
	defaultName string
	partitions  map[string]Backend

	mu     sync.Mutex
	warned map[string]struct{}
}

// NewManager creates a manager. defaultName must name one of partitions.
func NewManager(defaultName string, partitions map[string]Backend) (*Manager, error) {
	if defaultName == "" {
		defaultName = DefaultPartition
	}
	if _, ok := partitions[defaultName]; !ok {
		return nil, fmt.Errorf("default cache partition %q is not configured", defaultName)
	}
	return &Manager{
		defaultName: defaultName,
		partitions:  partitions,
		warned:      map[string]struct{}{},
	}, nil
}

// Partitions returns the configured partition names, sorted.
func (m *Manager) Partitions() []string {
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the partition name that will serve partition.
func (m *Manager) Resolve(partition string) string {
	if _, ok := m.partitions[partition]; ok {
		return partition
	}
	if partition != "" {
		m.mu.Lock()
		if _, seen := m.warned[partition]; !seen {
			m.warned[partition] = struct{}{}
			logger.Debugw("cache partition not configured, using default",
				"partition", partition, "default", m.defaultName)
		}
		m.mu.Unlock()
	}
	return m.defaultName
}

func (m *Manager) backend(partition string) Backend {
	return m.partitions[m.Resolve(partition)]
}

// Read implements Store.
func (m *Manager) Read(ctx context.Context, key, partition string) ([]byte, bool, error) {
	return m.backend(partition).Get(ctx, key)
}

// Write implements Store.
func (m *Manager) Write(ctx context.Context, key string, value []byte, partition string) error {
	return m.backend(partition).Set(ctx, key, value)
}

// Delete implements Store.
func (m *Manager) Delete(ctx context.Context, key, partition string) error {
	return m.backend(partition).Delete(ctx, key)
}

// Remember implements Store. It is not atomic: concurrent misses on the same
// key may each call producer, and the last write wins.
func (m *Manager) Remember(ctx context.Context, key, partition string, producer Producer) ([]byte, error) {
	b := m.backend(partition)

	value, found, err := b.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cache read %q: %w", key, err)
	}
	if found {
		return value, nil
	}

	value, err = producer(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.Set(ctx, key, value); err != nil {
		return nil, fmt.Errorf("cache write %q: %w", key, err)
	}
	return value, nil
}
