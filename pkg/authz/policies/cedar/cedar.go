// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cedar provides a policy type evaluated with Cedar.
//
// Requests are mapped as principal User::"<id>", action Action::"<action>"
// and resource Controller::"<controller>". The principal carries username
// and roles attributes; the context carries roles, method and path.
package cedar

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	cedar "github.com/cedar-policy/cedar-go"

	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/authz/policies"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// PolicyType is the configuration type of Cedar policies.
const PolicyType = "cedar"

// Entity types used in requests.
const (
	PrincipalType = "User"
	ActionType    = "Action"
	ResourceType  = "Controller"
)

// ErrNoPolicies is returned when no Cedar policy source is configured.
var ErrNoPolicies = errors.New("no policies loaded")

func init() {
	policies.Register(PolicyType, &Factory{})
}

// Options are the Cedar policy options.
type Options struct {
	// Policies is a list of Cedar policy strings.
	Policies []string `json:"policies" yaml:"policies"`

	// EntitiesJSON is the JSON string representing Cedar entities.
	EntitiesJSON string `json:"entities_json,omitempty" yaml:"entities_json,omitempty"`
}

// Factory creates Cedar policies.
type Factory struct{}

func parseOptions(raw json.RawMessage) (Options, error) {
	var opts Options
	if len(raw) == 0 {
		return opts, ErrNoPolicies
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("invalid cedar options: %w", err)
	}
	return opts, nil
}

// ValidateConfig implements policies.Factory.
func (*Factory) ValidateConfig(raw json.RawMessage) error {
	opts, err := parseOptions(raw)
	if err != nil {
		return err
	}
	_, err = New(opts)
	return err
}

// CreatePolicy implements policies.Factory.
func (*Factory) CreatePolicy(raw json.RawMessage) (policies.Policy, error) {
	opts, err := parseOptions(raw)
	if err != nil {
		return nil, err
	}
	return New(opts)
}

// Policy evaluates Cedar policies. It is immutable after New.
type Policy struct {
	policySet *cedar.PolicySet
	entities  cedar.EntityMap
}

// New parses opts into a Policy.
func New(opts Options) (*Policy, error) {
	if len(opts.Policies) == 0 {
		return nil, ErrNoPolicies
	}

	p := &Policy{
		policySet: cedar.NewPolicySet(),
		entities:  cedar.EntityMap{},
	}
	for i, policyStr := range opts.Policies {
		var policy cedar.Policy
		if err := policy.UnmarshalCedar([]byte(policyStr)); err != nil {
			return nil, fmt.Errorf("failed to parse policy %d: %w", i, err)
		}
		p.policySet.Add(cedar.PolicyID(fmt.Sprintf("policy%d", i)), &policy)
	}

	if opts.EntitiesJSON != "" {
		if err := json.Unmarshal([]byte(opts.EntitiesJSON), &p.entities); err != nil {
			return nil, fmt.Errorf("failed to parse entities JSON: %w", err)
		}
	}
	return p, nil
}

// CanAccess implements policies.Policy.
func (p *Policy) CanAccess(identity *auth.Identity, r *http.Request, target policies.Target) policies.Decision {
	if identity == nil {
		return policies.Deny("missing identity")
	}

	roles := rolesSet(identity.Roles())
	principal := cedar.NewEntityUID(PrincipalType, cedar.String(identity.ID()))

	contextMap := cedar.RecordMap{"roles": roles}
	if r != nil {
		contextMap["method"] = cedar.String(r.Method)
		contextMap["path"] = cedar.String(r.URL.Path)
	}

	req := cedar.Request{
		Principal: principal,
		Action:    cedar.NewEntityUID(ActionType, cedar.String(target.Action)),
		Resource:  cedar.NewEntityUID(ResourceType, cedar.String(target.Controller)),
		Context:   cedar.NewRecord(contextMap),
	}

	entities := make(cedar.EntityMap, len(p.entities)+1)
	for k, v := range p.entities {
		entities[k] = v
	}
	entities[principal] = cedar.Entity{
		UID:     principal,
		Parents: cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{
			"username": cedar.String(identity.Username()),
			"roles":    roles,
		}),
		Tags: cedar.NewRecord(cedar.RecordMap{}),
	}

	decision, diagnostic := cedar.Authorize(p.policySet, entities, req)
	logger.Debugw("cedar decision",
		"principal", req.Principal, "action", req.Action, "resource", req.Resource, "decision", decision)

	if len(diagnostic.Errors) > 0 {
		logger.Warnw("cedar evaluation failed", "errors", diagnostic.Errors)
		return policies.Deny("policy evaluation error")
	}
	if decision != cedar.Allow {
		return policies.Deny("denied by policy")
	}
	return policies.Allow()
}

func rolesSet(roles []string) cedar.Set {
	values := make([]cedar.Value, 0, len(roles))
	for _, role := range roles {
		values = append(values, cedar.String(role))
	}
	return cedar.NewSet(values...)
}
