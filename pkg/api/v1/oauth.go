// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/cmsproxy/pkg/api/errors"
	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/auth/oauth"
	"github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// ExtLoginRoutes defines the external provider login routes.
type ExtLoginRoutes struct {
	authenticator   *oauth.Authenticator
	newID           func() string
	defaultRedirect string
}

// ExtLoginRouter creates the router for /ext/login/{provider}. After a
// successful login the browser is sent to the redirect query parameter, or
// defaultRedirect.
func ExtLoginRouter(authenticator *oauth.Authenticator, newID func() string, defaultRedirect string) http.Handler {
	if defaultRedirect == "" {
		defaultRedirect = "/"
	}
	routes := ExtLoginRoutes{authenticator: authenticator, newID: newID, defaultRedirect: defaultRedirect}

	r := chi.NewRouter()
	r.Get("/{provider}", apierrors.ErrorHandler(routes.login))
	return r
}

// login
//
//	@Summary		Log in with an external provider
//	@Description	Without a code, redirect to the provider. With a code and state, complete the login.
//	@Tags			auth
//	@Param			provider	path	string	true	"Provider name"
//	@Param			code		query	string	false	"Authorization code"
//	@Param			state		query	string	false	"CSRF state"
//	@Param			redirect	query	string	false	"Local path to return to"
//	@Success		302
//	@Failure		400	{object}	map[string]any	"Invalid state or provider"
//	@Failure		401	{object}	map[string]any	"Identity not found"
//	@Router			/ext/login/{provider} [get]
func (e *ExtLoginRoutes) login(w http.ResponseWriter, r *http.Request) error {
	sess, err := requestSession(r)
	if err != nil {
		return err
	}
	provider := chi.URLParam(r, "provider")

	result, err := e.authenticator.Authenticate(r.Context(), r, sess, provider)
	if err != nil {
		return err
	}
	if result.Redirect() {
		http.Redirect(w, r, result.AuthURL, http.StatusFound)
		return nil
	}
	if result.Status != oauth.StatusSuccess {
		return errors.NewUnauthorizedError("Identity not found", nil)
	}

	if err := auth.Login(sess, e.newID(), result.Identity); err != nil {
		return errors.NewInternalError("failed to store identity", err)
	}
	logger.Infow("user logged in", "user", result.Identity.ID(), "provider", provider)
	http.Redirect(w, r, e.destination(r), http.StatusFound)
	return nil
}

// destination accepts only local paths.
func (e *ExtLoginRoutes) destination(r *http.Request) string {
	target := r.URL.Query().Get("redirect")
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return e.defaultRedirect
	}
	return target
}
