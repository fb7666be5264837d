// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	stderrors "errors"
	"fmt"
	neturl "net/url"
	"sort"
	"strings"

	"github.com/stacklok/cmsproxy/pkg/auth/oauth"
	"github.com/stacklok/cmsproxy/pkg/authz"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = stderrors.New("invalid configuration")

const redactedValue = "REDACTED"

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalidConfig)
	}

	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	add(c.validateAPI())
	add(validateBaseURL("public_base_url", c.PublicBaseURL, false))
	add(c.validateProxy())
	add(c.validateCache())
	add(c.validateSession())
	add(c.validateOAuth2())
	if _, err := authz.Compile(c.Authz); err != nil {
		add(fmt.Errorf("authz: %w", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateBaseURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	u, err := neturl.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL format: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: URL must start with http:// or https://", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: URL must include a host", field)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if err := validateBaseURL("api.base_url", c.API.BaseURL, true); err != nil {
		return err
	}
	if c.API.Retries != nil && *c.API.Retries < 0 {
		return fmt.Errorf("api.retries must be zero or positive, got %d", *c.API.Retries)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must be zero or positive")
	}
	return nil
}

func (c *Config) validateProxy() error {
	var errs []error
	for _, name := range c.Proxy.Clean {
		if _, err := jsonapi.ParseSection(name); err != nil {
			errs = append(errs, fmt.Errorf("proxy.clean: %w", err))
		}
	}
	return stderrors.Join(errs...)
}

func validBackend(name string) bool {
	return name == BackendMemory || name == BackendRedis
}

func (c *Config) validateCache() error {
	var errs []error
	if !validBackend(c.Cache.Backend) {
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Cache.Backend))
	}
	for _, name := range sortedKeys(c.Cache.Partitions) {
		p := c.Cache.Partitions[name]
		if p.Backend != "" && !validBackend(p.Backend) {
			errs = append(errs, fmt.Errorf("cache.partitions.%s.backend must be %q or %q, got %q",
				name, BackendMemory, BackendRedis, p.Backend))
		}
		if p.Size < 0 {
			errs = append(errs, fmt.Errorf("cache.partitions.%s.size must be zero or positive", name))
		}
		if p.TTL < 0 {
			errs = append(errs, fmt.Errorf("cache.partitions.%s.ttl must be zero or positive", name))
		}
	}
	if c.usesRedis() && c.Cache.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("cache.redis.addr is required when a partition uses the redis backend"))
	}
	return stderrors.Join(errs...)
}

// usesRedis reports whether any partition, including the implicit default
// one, is stored in redis.
func (c *Config) usesRedis() bool {
	for _, name := range c.partitionNames() {
		if c.partitionBackend(name) == BackendRedis {
			return true
		}
	}
	return false
}

func (c *Config) validateSession() error {
	if c.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must be zero or positive")
	}
	if strings.ContainsAny(c.Session.CookieName, " ;,=") {
		return fmt.Errorf("session.cookie_name %q is not a valid cookie name", c.Session.CookieName)
	}
	return nil
}

func (c *Config) validateOAuth2() error {
	var errs []error
	o := c.Auth.OAuth2
	if !strings.HasPrefix(o.RedirectPath, "/") || !strings.Contains(o.RedirectPath, "{provider}") {
		errs = append(errs, fmt.Errorf("auth.oauth2.redirect_path must be an absolute path containing {provider}, got %q",
			o.RedirectPath))
	}
	if !strings.HasPrefix(o.DefaultRedirect, "/") || strings.HasPrefix(o.DefaultRedirect, "//") {
		errs = append(errs, fmt.Errorf("auth.oauth2.default_redirect must be a local path, got %q", o.DefaultRedirect))
	}
	if c.Auth.AutoSignup.Enabled && len(o.Providers) == 0 {
		errs = append(errs, fmt.Errorf("auth.auto_signup is enabled but no oauth2 provider is configured"))
	}
	return stderrors.Join(errs...)
}

// InvalidProviders returns the providers that cannot be built, keyed by
// name. They are disabled at runtime rather than failing start-up.
func (c *Config) InvalidProviders() map[string]error {
	invalid := map[string]error{}
	for name, pc := range c.Auth.OAuth2.Providers {
		if _, err := oauth.BuildProvider(pc); err != nil {
			invalid[name] = err
		}
	}
	return invalid
}

func redactProviders(c *Config) map[string]oauth.ProviderConfig {
	out := make(map[string]oauth.ProviderConfig, len(c.Auth.OAuth2.Providers))
	for name, pc := range c.Auth.OAuth2.Providers {
		setup := make(map[string]string, len(pc.Setup))
		for k, v := range pc.Setup {
			if k == oauth.SetupClientSecret && v != "" {
				v = redactedValue
			}
			setup[k] = v
		}
		pc.Setup = setup
		out[name] = pc
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
