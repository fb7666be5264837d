// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/authz/policies"
	cmserrors "github.com/stacklok/cmsproxy/pkg/errors"
)

// Decision is the outcome of an access check.
type Decision = policies.Decision

// Denial reasons.
const (
	ReasonRuleMissing     = "required rule is missing"
	ReasonMissingIdentity = "missing identity"
	ReasonMissingRole     = "missing required role"
)

// RuleFunc decides access for one request.
type RuleFunc func(identity *auth.Identity, r *http.Request) Decision

type rule interface {
	decide(identity *auth.Identity, r *http.Request, target policies.Target) Decision
}

type roleRule []string

func (roles roleRule) decide(identity *auth.Identity, _ *http.Request, _ policies.Target) Decision {
	if identity.HasAnyRole(roles...) {
		return policies.Allow()
	}
	return policies.Deny(ReasonMissingRole)
}

type funcRule RuleFunc

func (f funcRule) decide(identity *auth.Identity, r *http.Request, _ policies.Target) Decision {
	return f(identity, r)
}

type policyRule struct {
	policy policies.Policy
}

func (p policyRule) decide(identity *auth.Identity, r *http.Request, target policies.Target) Decision {
	return p.policy.CanAccess(identity, r, target)
}

// controllerRule is either one rule for every action or a rule per action.
type controllerRule struct {
	all     rule
	actions map[string]rule
}

func (c controllerRule) resolve(action string) rule {
	if c.all != nil {
		return c.all
	}
	if r, ok := c.actions[action]; ok {
		return r
	}
	return c.actions[Wildcard]
}

// Authorizer answers access checks against compiled rules. It is immutable
// and safe for concurrent use.
type Authorizer struct {
	ruleRequired bool
	rules        map[string]controllerRule
}

// Compile validates cfg and compiles it. Every invalid rule or policy is
// reported in the returned configuration error.
func Compile(cfg Config) (*Authorizer, error) {
	named, errs := cfg.buildPolicies()

	controllers := make([]string, 0, len(cfg.Rules))
	for controller := range cfg.Rules {
		controllers = append(controllers, controller)
	}
	sort.Strings(controllers)

	a := &Authorizer{ruleRequired: cfg.RuleRequired, rules: make(map[string]controllerRule, len(controllers))}
	for _, controller := range controllers {
		cr, err := compileController(cfg.Rules[controller], named)
		if err != nil {
			errs = append(errs, fmt.Errorf("rules.%s: %w", controller, err))
			continue
		}
		a.rules[controller] = cr
	}

	if len(errs) > 0 {
		return nil, cmserrors.NewConfigurationError("invalid authorization rules", errors.Join(errs...))
	}
	return a, nil
}

func compileController(value any, named map[string]policies.Policy) (controllerRule, error) {
	actions, ok := value.(map[string]any)
	if !ok {
		r, err := compileRule(value, named)
		return controllerRule{all: r}, err
	}

	cr := controllerRule{actions: make(map[string]rule, len(actions))}
	for action, v := range actions {
		r, err := compileRule(v, named)
		if err != nil {
			return cr, fmt.Errorf("%s: %w", action, err)
		}
		cr.actions[action] = r
	}
	return cr, nil
}

func compileRule(value any, named map[string]policies.Policy) (rule, error) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("empty rule")
		}
		if p, ok := named[v]; ok {
			return policyRule{policy: p}, nil
		}
		return roleRule{v}, nil
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty role list")
		}
		return roleRule(v), nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty role list")
		}
		roles := make(roleRule, 0, len(v))
		for i, item := range v {
			role, ok := item.(string)
			if !ok || role == "" {
				return nil, fmt.Errorf("role %d is not a string", i)
			}
			roles = append(roles, role)
		}
		return roles, nil
	case RuleFunc:
		return funcRule(v), nil
	case func(*auth.Identity, *http.Request) Decision:
		return funcRule(v), nil
	case policies.Policy:
		return policyRule{policy: v}, nil
	default:
		return nil, fmt.Errorf("unsupported rule type %T", value)
	}
}

// CanAccess decides whether identity may run action on controller. A nil
// identity is anonymous.
func (a *Authorizer) CanAccess(identity *auth.Identity, r *http.Request, controller, action string) Decision {
	var resolved rule
	if cr, ok := a.rules[controller]; ok {
		resolved = cr.resolve(action)
	}

	if resolved == nil {
		if a.ruleRequired {
			return policies.Deny(ReasonRuleMissing)
		}
		return policies.Allow()
	}
	if identity == nil {
		return policies.Deny(ReasonMissingIdentity)
	}
	return resolved.decide(identity, r, policies.Target{Controller: controller, Action: action})
}

// Controllers returns the controllers that have rules, sorted.
func (a *Authorizer) Controllers() []string {
	names := make([]string, 0, len(a.rules))
	for name := range a.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
