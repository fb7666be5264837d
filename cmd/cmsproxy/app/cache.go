// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/cmsproxy/cmd/cmsproxy/app/ui"
	"github.com/stacklok/cmsproxy/pkg/apicache"
	"github.com/stacklok/cmsproxy/pkg/config"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate the API response cache",
		Long: `Inspect and invalidate the API response cache.

Only caches stored in a shared backend such as redis are visible here; memory
partitions live inside the serving process.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached API responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCacheReader(cmd.Context(), func(reader *apicache.Reader) error {
				index, err := reader.Index(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to read cache index: %w", err)
				}
				return ui.RenderCacheIndex(cmd.OutOrStdout(), index)
			})
		},
	})

	var key string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached API responses",
		Long:  `Remove every cached API response, or only the one named by --key.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCacheReader(cmd.Context(), func(reader *apicache.Reader) error {
				if key != "" {
					if err := reader.Invalidate(cmd.Context(), key); err != nil {
						return fmt.Errorf("failed to invalidate %s: %w", key, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", key)
					return nil
				}
				removed, err := reader.Clear(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to clear cache: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached responses\n", removed)
				return nil
			})
		},
	}
	clearCmd.Flags().StringVar(&key, "key", "", "Remove only this cache key")
	cmd.AddCommand(clearCmd)

	return cmd
}

// withCacheReader opens the API cache partition described by the
// configuration and calls fn with a reader over it.
func withCacheReader(ctx context.Context, fn func(*apicache.Reader) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	return withConfigCacheReader(ctx, cfg, fn)
}

func withConfigCacheReader(ctx context.Context, cfg *config.Config, fn func(*apicache.Reader) error) error {
	client, err := cfg.BuildAPIClient()
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}
	caches, err := cfg.BuildCaches(ctx)
	if err != nil {
		return fmt.Errorf("failed to create caches: %w", err)
	}
	defer func() {
		if err := caches.Close(); err != nil {
			logger.Warnf("failed to close cache connections: %v", err)
		}
	}()

	partition := caches.Manager.Resolve(cfg.Cache.APIPartition)
	if caches.Redis == nil {
		logger.Warnf("cache partition %s is held in memory; only entries of this process are visible", partition)
	}
	return fn(apicache.NewReader(client, caches.Manager, partition))
}
