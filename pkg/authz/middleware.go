// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"net/http"
	"strings"

	apierrors "github.com/stacklok/cmsproxy/pkg/api/errors"
	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// ActionFunc names the action a request performs.
type ActionFunc func(r *http.Request) string

// MethodAction uses the lower-case HTTP method as the action.
func MethodAction(r *http.Request) string {
	return strings.ToLower(r.Method)
}

// StaticAction always returns name.
func StaticAction(name string) ActionFunc {
	return func(*http.Request) string { return name }
}

// Middleware rejects requests the authorizer denies: 401 when there is no
// identity, 403 otherwise.
func Middleware(a *Authorizer, controller string, action ActionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := auth.IdentityFromContext(r.Context())
			name := action(r)

			decision := a.CanAccess(identity, r, controller, name)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			logger.Debugw("access denied",
				"controller", controller, "action", name, "reason", decision.Reason)
			if identity == nil {
				apierrors.WriteError(w, errors.NewUnauthorizedError(decision.Reason, nil))
				return
			}
			apierrors.WriteError(w, errors.NewForbiddenError(decision.Reason, nil))
		})
	}
}
