// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the cmsproxy command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/cmsproxy/pkg/config"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// NewRootCmd creates a new root command for the cmsproxy CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "cmsproxy",
		DisableAutoGenTag: true,
		Short:             "cmsproxy fronts a JSON:API content management API",
		Long: `cmsproxy is an HTTP proxy in front of a JSON:API content management API.

It forwards /api and /media requests to the upstream API, rewrites upstream links
to the public base URL, caches GET responses, and authenticates browser users with
a password or an external OAuth2 provider before authorizing each route by role.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the cmsproxy configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// loadConfig loads the file named by --config, or a configuration built from
// the environment when no file is given.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		logger.Debugf("no configuration file specified, using environment and defaults")
	}
	return config.Load(path)
}
