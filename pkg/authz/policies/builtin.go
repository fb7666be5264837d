// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package policies

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stacklok/cmsproxy/pkg/auth"
)

// Built-in policy types.
const (
	TypeAuthenticated = "authenticated"
	TypeRoles         = "roles"
)

func init() {
	Register(TypeAuthenticated, authenticatedFactory{})
	Register(TypeRoles, rolesFactory{})
}

// Authenticated allows any logged-in identity.
type Authenticated struct{}

// CanAccess implements Policy.
func (Authenticated) CanAccess(identity *auth.Identity, _ *http.Request, _ Target) Decision {
	if identity == nil {
		return Deny("missing identity")
	}
	return Allow()
}

type authenticatedFactory struct{}

func (authenticatedFactory) ValidateConfig(json.RawMessage) error { return nil }

func (authenticatedFactory) CreatePolicy(json.RawMessage) (Policy, error) {
	return Authenticated{}, nil
}

// Roles requires every role in AllOf and at least one role in AnyOf, when set.
type Roles struct {
	AllOf []string `json:"all_of,omitempty"`
	AnyOf []string `json:"any_of,omitempty"`
}

// CanAccess implements Policy.
func (p Roles) CanAccess(identity *auth.Identity, _ *http.Request, _ Target) Decision {
	if identity == nil {
		return Deny("missing identity")
	}
	for _, role := range p.AllOf {
		if !identity.HasRole(role) {
			return Deny(fmt.Sprintf("missing required role %s", role))
		}
	}
	if len(p.AnyOf) > 0 && !identity.HasAnyRole(p.AnyOf...) {
		return Deny("missing required role")
	}
	return Allow()
}

type rolesFactory struct{}

func (rolesFactory) parse(raw json.RawMessage) (Roles, error) {
	var p Roles
	if len(raw) == 0 {
		return p, fmt.Errorf("roles policy requires all_of or any_of")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid roles policy: %w", err)
	}
	if len(p.AllOf) == 0 && len(p.AnyOf) == 0 {
		return p, fmt.Errorf("roles policy requires all_of or any_of")
	}
	return p, nil
}

func (f rolesFactory) ValidateConfig(raw json.RawMessage) error {
	_, err := f.parse(raw)
	return err
}

func (f rolesFactory) CreatePolicy(raw json.RawMessage) (Policy, error) {
	p, err := f.parse(raw)
	if err != nil {
		return nil, err
	}
	return p, nil
}
