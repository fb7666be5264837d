// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package policies defines named access policies and the registry of policy
// types that can be declared in configuration.
package policies

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/stacklok/cmsproxy/pkg/auth"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is a positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny is a negative decision with reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Target names what is being accessed.
type Target struct {
	Controller string
	Action     string
}

// Policy decides access on its own terms.
type Policy interface {
	CanAccess(identity *auth.Identity, r *http.Request, target Target) Decision
}

// Factory creates policies of one type from their JSON-encoded options.
type Factory interface {
	// ValidateConfig validates the type-specific options.
	ValidateConfig(rawConfig json.RawMessage) error

	// CreatePolicy creates a Policy from the options.
	CreatePolicy(rawConfig json.RawMessage) (Policy, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register registers a Factory for policyType. It is typically called from
// an init() function and panics if the type is already registered.
func Register(policyType string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[policyType]; exists {
		panic(fmt.Sprintf("policy factory already registered for type: %s", policyType))
	}
	registry[policyType] = factory
}

// GetFactory returns the Factory for policyType, or nil.
func GetFactory(policyType string) Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	return registry[policyType]
}

// IsRegistered returns true if a factory is registered for policyType.
func IsRegistered(policyType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()

	_, exists := registry[policyType]
	return exists
}

// RegisteredTypes returns the registered policy types, sorted.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create validates rawConfig and creates a policy of policyType.
func Create(policyType string, rawConfig json.RawMessage) (Policy, error) {
	factory := GetFactory(policyType)
	if factory == nil {
		return nil, fmt.Errorf("unknown policy type %q (registered: %v)", policyType, RegisteredTypes())
	}
	if err := factory.ValidateConfig(rawConfig); err != nil {
		return nil, err
	}
	return factory.CreatePolicy(rawConfig)
}
