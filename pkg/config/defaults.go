// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"dario.cat/mergo"

	"github.com/stacklok/cmsproxy/pkg/auth/oauth"
	"github.com/stacklok/cmsproxy/pkg/cache"
	"github.com/stacklok/cmsproxy/pkg/session"
)

const (
	defaultAddress         = ":8080"
	defaultAPITimeout      = 30 * time.Second
	defaultRedisKeyPrefix  = "cmsproxy:"
	defaultLoginRedirect   = "/"
	defaultCacheBackend    = BackendMemory
	defaultSessionTTL      = session.DefaultTTL
	defaultSessionCookie   = session.DefaultCookieName
	defaultSessionStore    = session.DefaultPartition
	defaultCachePartition  = cache.DefaultPartition
	defaultOAuthSessionKey = oauth.DefaultSessionKey
)

// Default returns a configuration holding every default value.
func Default() *Config {
	return &Config{
		Address: defaultAddress,
		API: APIConfig{
			Timeout: Duration(defaultAPITimeout),
		},
		Cache: CacheConfig{
			Backend:          defaultCacheBackend,
			DefaultPartition: defaultCachePartition,
			Redis: RedisConfig{
				KeyPrefix: defaultRedisKeyPrefix,
			},
		},
		Session: SessionConfig{
			CookieName: defaultSessionCookie,
			TTL:        Duration(defaultSessionTTL),
			Partition:  defaultSessionStore,
		},
		Auth: AuthConfig{
			OAuth2: OAuth2Config{
				SessionKey:      defaultOAuthSessionKey,
				RedirectPath:    oauth.DefaultRedirectPath,
				DefaultRedirect: defaultLoginRedirect,
			},
		},
	}
}

// EnsureDefaults fills every zero value with its default. Values set by the
// user are preserved.
func (c *Config) EnsureDefaults() {
	if c == nil {
		return
	}
	_ = mergo.Merge(c, Default())
}
