// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/cmsproxy/pkg/cache"
	"github.com/stacklok/cmsproxy/pkg/cache/mocks"
)

func newManager(t *testing.T) (*cache.Manager, *cache.MemoryBackend, *cache.MemoryBackend) {
	t.Helper()
	def := cache.NewMemoryBackend(16, 0)
	api := cache.NewMemoryBackend(16, 0)
	m, err := cache.NewManager("", map[string]cache.Backend{
		cache.DefaultPartition: def,
		"api":                  api,
	})
	require.NoError(t, err)
	return m, def, api
}

func TestNewManager_RequiresDefaultPartition(t *testing.T) {
	t.Parallel()

	_, err := cache.NewManager("main", map[string]cache.Backend{"other": cache.NewMemoryBackend(1, 0)})
	assert.Error(t, err)
}

func TestManager_ReadWriteDelete(t *testing.T) {
	t.Parallel()

	m, _, api := newManager(t)
	ctx := context.Background()

	_, found, err := m.Read(ctx, "k", "api")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Write(ctx, "k", []byte("v"), "api"))
	value, found, err := m.Read(ctx, "k", "api")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
	assert.Equal(t, 1, api.Len())

	require.NoError(t, m.Delete(ctx, "k", "api"))
	_, found, err = m.Read(ctx, "k", "api")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_UnknownPartitionFallsBackToDefault(t *testing.T) {
	t.Parallel()

	m, def, api := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, "k", []byte("v"), "not-configured"))

	assert.Equal(t, 1, def.Len())
	assert.Equal(t, 0, api.Len())
	assert.Equal(t, cache.DefaultPartition, m.Resolve("not-configured"))
	assert.Equal(t, cache.DefaultPartition, m.Resolve(""))
	assert.Equal(t, "api", m.Resolve("api"))
	assert.Equal(t, []string{"api", cache.DefaultPartition}, m.Partitions())
}

func TestManager_Remember(t *testing.T) {
	t.Parallel()

	m, _, _ := newManager(t)
	ctx := context.Background()

	calls := 0
	producer := func(context.Context) ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	first, err := m.Remember(ctx, "k", "api", producer)
	require.NoError(t, err)
	second, err := m.Remember(ctx, "k", "api", producer)
	require.NoError(t, err)

	assert.Equal(t, []byte("computed"), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestManager_RememberProducerErrorStoresNothing(t *testing.T) {
	t.Parallel()

	m, _, api := newManager(t)
	boom := errors.New("upstream down")

	_, err := m.Remember(context.Background(), "k", "api", func(context.Context) ([]byte, error) {
		return nil, boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, api.Len())
}

func TestManager_BackendErrorsPropagate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	m, err := cache.NewManager(cache.DefaultPartition, map[string]cache.Backend{cache.DefaultPartition: backend})
	require.NoError(t, err)

	readErr := errors.New("read failed")
	writeErr := errors.New("write failed")

	backend.EXPECT().Get(gomock.Any(), "a").Return(nil, false, readErr)
	_, err = m.Remember(context.Background(), "a", "", func(context.Context) ([]byte, error) {
		t.Fatal("producer must not run when the read fails")
		return nil, nil
	})
	require.ErrorIs(t, err, readErr)

	backend.EXPECT().Get(gomock.Any(), "b").Return(nil, false, nil)
	backend.EXPECT().Set(gomock.Any(), "b", []byte("v")).Return(writeErr)
	_, err = m.Remember(context.Background(), "b", "", func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	})
	require.ErrorIs(t, err, writeErr)
}
