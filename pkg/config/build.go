// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	neturl "net/url"
	"time"

	"github.com/redis/go-redis/v9"

	v1 "github.com/stacklok/cmsproxy/pkg/api/v1"
	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/auth/oauth"
	"github.com/stacklok/cmsproxy/pkg/authz"
	"github.com/stacklok/cmsproxy/pkg/cache"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
	"github.com/stacklok/cmsproxy/pkg/session"
)

const retryInitialDelay = 200 * time.Millisecond

// partitionNames returns the declared partitions plus the default one.
func (c *Config) partitionNames() []string {
	names := sortedKeys(c.Cache.Partitions)
	if _, ok := c.Cache.Partitions[c.Cache.DefaultPartition]; !ok {
		names = append(names, c.Cache.DefaultPartition)
	}
	return names
}

func (c *Config) partitionBackend(name string) string {
	if p, ok := c.Cache.Partitions[name]; ok && p.Backend != "" {
		return p.Backend
	}
	return c.Cache.Backend
}

// Caches holds the cache manager built from the configuration. Redis is nil
// unless a partition uses the redis backend.
type Caches struct {
	Manager *cache.Manager
	Redis   redis.UniversalClient
}

// Close releases the redis connection, if any.
func (c *Caches) Close() error {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Close()
}

// Ping checks the redis connection. It succeeds when redis is not used.
func (c *Caches) Ping(ctx context.Context) error {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Ping(ctx).Err()
}

// BuildCaches creates every cache partition, connecting to redis when needed.
func (c *Config) BuildCaches(ctx context.Context) (*Caches, error) {
	caches := &Caches{}
	if c.usesRedis() {
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     c.Cache.Redis.Addr,
			Username: c.Cache.Redis.Username,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		caches.Redis = client
	}

	backends := make(map[string]cache.Backend)
	for _, name := range c.partitionNames() {
		p := c.Cache.Partitions[name]
		ttl := time.Duration(p.TTL)
		switch c.partitionBackend(name) {
		case BackendRedis:
			backends[name] = cache.NewRedisBackend(caches.Redis, c.Cache.Redis.KeyPrefix, name, ttl)
		default:
			backends[name] = cache.NewMemoryBackend(p.Size, ttl)
		}
	}

	manager, err := cache.NewManager(c.Cache.DefaultPartition, backends)
	if err != nil {
		_ = caches.Close()
		return nil, err
	}
	caches.Manager = manager
	return caches, nil
}

// BuildAPIClient creates the upstream API client.
func (c *Config) BuildAPIClient() (*apiclient.HTTPClient, error) {
	opts := []apiclient.Option{apiclient.WithTimeout(time.Duration(c.API.Timeout))}
	if c.API.Retries != nil {
		opts = append(opts, apiclient.WithRetries(*c.API.Retries, retryInitialDelay))
	}
	if c.API.APIKey != "" {
		opts = append(opts, apiclient.WithAPIKey(c.API.APIKey))
	}
	return apiclient.NewHTTPClient(c.API.BaseURL, opts...)
}

// BuildAuthorizer compiles the authorization rules.
func (c *Config) BuildAuthorizer() (*authz.Authorizer, error) {
	return authz.Compile(c.Authz)
}

// BuildProviders creates the configured OAuth2 providers. Invalid entries
// are logged and disabled.
func (c *Config) BuildProviders(opts ...oauth.OAuth2ProviderOption) *oauth.Providers {
	return oauth.NewProviders(c.Auth.OAuth2.Providers, opts...)
}

// FlowConfig returns the OAuth2 flow settings.
func (c *Config) FlowConfig() oauth.FlowConfig {
	return oauth.FlowConfig{
		SessionKey:    c.Auth.OAuth2.SessionKey,
		RedirectPath:  c.Auth.OAuth2.RedirectPath,
		PublicBaseURL: c.publicOrigin(),
	}
}

// publicOrigin strips the /api suffix from the public base URL, leaving the
// origin the OAuth2 callback is served on.
func (c *Config) publicOrigin() string {
	if c.PublicBaseURL == "" {
		return ""
	}
	u, err := neturl.Parse(c.PublicBaseURL)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

// SessionOptions returns the session manager settings.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		CookieName: c.Session.CookieName,
		Partition:  c.Session.Partition,
		TTL:        time.Duration(c.Session.TTL),
		Secure:     c.Session.Secure,
	}
}

// Pipeline returns the response pipeline of the /api and /media routes.
// apiBaseURL is the upstream base URL masked in responses.
func (c *Config) Pipeline(apiBaseURL string) v1.Pipeline {
	sections := make([]jsonapi.Section, 0, len(c.Proxy.Clean))
	for _, name := range c.Proxy.Clean {
		// Validate has rejected unknown names.
		if s, err := jsonapi.ParseSection(name); err == nil {
			sections = append(sections, s)
		}
	}
	return v1.Pipeline{
		APIBaseURL:    apiBaseURL,
		PublicBaseURL: c.PublicBaseURL,
		EmbedIncluded: c.Proxy.EmbedIncluded,
		Clean:         sections,
	}
}
