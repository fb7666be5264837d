// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stacklok/cmsproxy/pkg/logger"
)

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the cmsproxy configuration file for syntax and semantic errors.

This command checks:
- YAML syntax validity and unknown fields
- Required fields presence
- Cache backend and partition settings
- Authorization rules and policies
- OAuth2 provider definitions (invalid providers are reported, not fatal)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			invalid := cfg.InvalidProviders()
			names := make([]string, 0, len(invalid))
			for name := range invalid {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				logger.Warnw("oauth provider will be disabled", "provider", name, "error", invalid[name])
				fmt.Fprintf(out, "! provider %s is invalid: %v\n", name, invalid[name])
			}

			fmt.Fprintln(out, "✓ Configuration is valid")
			fmt.Fprintf(out, "  API: %s\n", cfg.API.BaseURL)
			fmt.Fprintf(out, "  Cache backend: %s (default partition %s)\n", cfg.Cache.Backend, cfg.Cache.DefaultPartition)
			fmt.Fprintf(out, "  OAuth2 providers: %d configured, %d invalid\n", len(cfg.Auth.OAuth2.Providers), len(invalid))
			fmt.Fprintf(out, "  Authorization rules: %d controllers\n", len(cfg.Authz.Rules))
			return nil
		},
	}
}
