// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stacklok/toolhive-core/env"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// Environment variables overriding values of the configuration file.
const (
	EnvAPIBaseURL    = "CMSPROXY_API_BASE_URL"
	EnvAPIKey        = "CMSPROXY_API_KEY"
	EnvRedisPassword = "CMSPROXY_REDIS_PASSWORD"
)

// Load reads the configuration file at path, applies environment overrides
// and defaults, and validates the result. An empty path loads a
// configuration built from the environment and defaults only.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, &env.OSReader{})
}

// LoadWithEnv is Load with an explicit environment reader.
func LoadWithEnv(path string, envReader env.Reader) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		// #nosec G304: the configuration path is provided by the operator
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, errors.NewConfigurationError("failed to read configuration file", err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
		logger.Debugf("loaded configuration from %s", path)
	}

	cfg.applyEnv(envReader)
	cfg.EnsureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigurationError(err.Error(), err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.NewConfigurationError("failed to parse configuration file", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(envReader env.Reader) {
	if v := envReader.Getenv(EnvAPIBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := envReader.Getenv(EnvAPIKey); v != "" {
		c.API.APIKey = v
	}
	if v := envReader.Getenv(EnvRedisPassword); v != "" {
		c.Cache.Redis.Password = v
	}
}

// String renders the configuration as YAML with secrets redacted.
func (c *Config) String() string {
	redacted := *c
	if redacted.API.APIKey != "" {
		redacted.API.APIKey = redactedValue
	}
	if redacted.Cache.Redis.Password != "" {
		redacted.Cache.Redis.Password = redactedValue
	}
	if len(c.Auth.OAuth2.Providers) > 0 {
		redacted.Auth.OAuth2.Providers = redactProviders(c)
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("<invalid configuration: %v>", err)
	}
	return string(out)
}
