// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authz authorizes requests with per-controller and per-action rules.
package authz

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"sigs.k8s.io/yaml"

	"github.com/stacklok/cmsproxy/pkg/authz/policies"
)

// Wildcard is the action key matching every action without its own rule.
const Wildcard = "*"

// Config is the declarative authorization configuration.
//
// Rules maps a controller name to either a rule or a map of action name to
// rule. A rule is a role name, a list of role names, or the name of an entry
// in Policies. Programmatic configs may also use RuleFunc and policies.Policy
// values.
type Config struct {
	// RuleRequired denies access to controllers without a rule.
	RuleRequired bool `json:"rule_required,omitempty" yaml:"rule_required,omitempty"`

	// Rules holds the per-controller rules.
	Rules map[string]any `json:"rules,omitempty" yaml:"rules,omitempty"`

	// Policies declares named policies usable as rules.
	Policies map[string]PolicyConfig `json:"policies,omitempty" yaml:"policies,omitempty"`
}

// PolicyConfig declares a policy of a registered type.
type PolicyConfig struct {
	Type    string         `json:"type" yaml:"type"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// LoadConfigFile loads a Config from a YAML or JSON file.
//
//nolint:gosec // This is intentionally loading a file specified by the user
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization configuration file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse authorization configuration file: %w", err)
	}
	return &config, nil
}

// buildPolicies creates every declared policy, in name order.
func (c *Config) buildPolicies() (map[string]policies.Policy, []error) {
	names := make([]string, 0, len(c.Policies))
	for name := range c.Policies {
		names = append(names, name)
	}
	sort.Strings(names)

	built := make(map[string]policies.Policy, len(names))
	var errs []error
	for _, name := range names {
		pc := c.Policies[name]
		if pc.Type == "" {
			errs = append(errs, fmt.Errorf("policy %q: type is required", name))
			continue
		}
		var raw json.RawMessage
		if pc.Options != nil {
			b, err := json.Marshal(pc.Options)
			if err != nil {
				errs = append(errs, fmt.Errorf("policy %q: %w", name, err))
				continue
			}
			raw = b
		}
		p, err := policies.Create(pc.Type, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("policy %q: %w", name, err))
			continue
		}
		built[name] = p
	}
	return built, errs
}
