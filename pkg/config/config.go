// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the cmsproxy configuration file
// and the logic required to load, validate and turn it into components.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/cmsproxy/pkg/auth/oauth"
	"github.com/stacklok/cmsproxy/pkg/authz"
)

// Config is the cmsproxy configuration file.
type Config struct {
	// Address is the listen address of the server.
	Address string `yaml:"address"`
	// PublicBaseURL replaces the upstream base URL in responses. When empty
	// it is derived from each request.
	PublicBaseURL string `yaml:"public_base_url"`
	// Metrics enables the /metrics endpoint.
	Metrics bool `yaml:"metrics"`

	API     APIConfig     `yaml:"api"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Cache   CacheConfig   `yaml:"cache"`
	Session SessionConfig `yaml:"session"`
	Auth    AuthConfig    `yaml:"auth"`
	Authz   authz.Config  `yaml:"authz"`
}

// APIConfig points at the upstream JSON:API.
type APIConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
	// Retries is how many times a failed GET is retried. Unset uses the
	// client default.
	Retries *int `yaml:"retries"`
}

// ProxyConfig controls the response pipeline of the /api routes.
type ProxyConfig struct {
	EmbedIncluded bool     `yaml:"embed_included"`
	Clean         []string `yaml:"clean"`
	CacheGet      bool     `yaml:"cache_get"`
}

// CacheConfig declares the cache partitions.
type CacheConfig struct {
	// Backend is used by partitions that do not set their own.
	Backend          string                     `yaml:"backend"`
	DefaultPartition string                     `yaml:"default_partition"`
	APIPartition     string                     `yaml:"api_partition"`
	Partitions       map[string]PartitionConfig `yaml:"partitions"`
	Redis            RedisConfig                `yaml:"redis"`
}

// PartitionConfig configures one cache partition.
type PartitionConfig struct {
	Backend string   `yaml:"backend"`
	Size    int      `yaml:"size"`
	TTL     Duration `yaml:"ttl"`
}

// RedisConfig holds the connection settings shared by redis partitions.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SessionConfig configures the session cookie and its storage partition.
type SessionConfig struct {
	CookieName string   `yaml:"cookie_name"`
	TTL        Duration `yaml:"ttl"`
	Secure     bool     `yaml:"secure"`
	Partition  string   `yaml:"partition"`
}

// AuthConfig configures external login.
type AuthConfig struct {
	OAuth2     OAuth2Config       `yaml:"oauth2"`
	AutoSignup oauth.SignupConfig `yaml:"auto_signup"`
}

// OAuth2Config configures the OAuth2 login flow and its providers.
type OAuth2Config struct {
	SessionKey      string                          `yaml:"session_key"`
	RedirectPath    string                          `yaml:"redirect_path"`
	DefaultRedirect string                          `yaml:"default_redirect"`
	Providers       map[string]oauth.ProviderConfig `yaml:"providers"`
}

// Cache backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Duration is a time.Duration written as a duration string such as "30s".
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}
