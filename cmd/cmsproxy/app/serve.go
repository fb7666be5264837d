// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/cmsproxy/pkg/api"
	v1 "github.com/stacklok/cmsproxy/pkg/api/v1"
	"github.com/stacklok/cmsproxy/pkg/apicache"
	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/auth/oauth"
	"github.com/stacklok/cmsproxy/pkg/config"
	"github.com/stacklok/cmsproxy/pkg/logger"
	"github.com/stacklok/cmsproxy/pkg/session"
)

// newServeCmd creates the serve command for starting the proxy
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cmsproxy server",
		Long: `Start the cmsproxy server.

The server reads the configuration file specified by the --config flag, connects
to the configured cache backends and serves the /api, /media, /auth and
/ext/login routes until it receives an interrupt signal.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", "", "Address to listen on (overrides the configuration file)")
	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		logger.Errorf("Error binding address flag: %v", err)
	}
	return cmd
}

// runServe implements the serve command logic
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}
	if address := viper.GetString("address"); address != "" {
		cfg.Address = address
	}

	handler, cleanup, err := buildServer(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Infow("starting cmsproxy", "address", cfg.Address, "api", cfg.API.BaseURL)
	return api.Serve(ctx, cfg.Address, handler)
}

// buildServer wires every component described by cfg into the HTTP
// handler. cleanup releases the cache connections.
func buildServer(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (http.Handler, func(), error) {
	client, err := cfg.BuildAPIClient()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	authorizer, err := cfg.BuildAuthorizer()
	if err != nil {
		return nil, nil, err
	}
	caches, err := cfg.BuildCaches(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create caches: %w", err)
	}
	cleanup := func() {
		if err := caches.Close(); err != nil {
			logger.Warnf("failed to close cache connections: %v", err)
		}
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := apicache.NewMetrics(reg)

	identifier := auth.NewAPIIdentifier(client)
	sessions := session.NewManager(caches.Manager, cfg.SessionOptions())

	opts := api.Options{
		Client:          client,
		Identifier:      identifier,
		Sessions:        sessions,
		Authorizer:      authorizer,
		Pipeline:        cfg.Pipeline(client.BaseURL()),
		DefaultRedirect: cfg.Auth.OAuth2.DefaultRedirect,
		HealthChecks:    []v1.HealthCheck{caches.Ping},
	}
	if cfg.Proxy.CacheGet {
		opts.CachedReader = apicache.NewReader(client, caches.Manager, caches.Manager.Resolve(cfg.Cache.APIPartition),
			apicache.WithMetrics(metrics))
	}
	if cfg.Metrics {
		opts.Gatherer = reg
	}

	providers := cfg.BuildProviders()
	if names := providers.Names(); len(names) > 0 {
		external := oauth.NewSignupIdentifier(identifier, client, cfg.Auth.AutoSignup)
		opts.Authenticator = oauth.NewAuthenticator(providers, external, cfg.FlowConfig())
		logger.Infow("external login enabled", "providers", names)
	}

	handler, err := api.NewRouter(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return handler, cleanup, nil
}
