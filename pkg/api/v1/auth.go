// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/cmsproxy/pkg/api/errors"
	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/logger"
	"github.com/stacklok/cmsproxy/pkg/session"
)

// PasswordIdentifier logs users in with a username and password.
type PasswordIdentifier interface {
	IdentifyPassword(ctx context.Context, username, password string) (*auth.Identity, error)
}

// AuthRoutes defines the password login routes.
type AuthRoutes struct {
	identifier PasswordIdentifier
	newID      func() string
}

// AuthRouter creates the router for /login, /logout and /me. newID returns
// the session ID assigned on login.
func AuthRouter(identifier PasswordIdentifier, newID func() string) http.Handler {
	routes := AuthRoutes{identifier: identifier, newID: newID}

	r := chi.NewRouter()
	r.Post("/login", apierrors.ErrorHandler(routes.login))
	r.Post("/logout", apierrors.ErrorHandler(routes.logout))
	r.Get("/me", apierrors.ErrorHandler(routes.me))
	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// identityResponse is the public view of an identity. Tokens are never returned.
type identityResponse struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	Roles      []string       `json:"roles"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func newIdentityResponse(identity *auth.Identity) identityResponse {
	rec := identity.Record()
	return identityResponse{ID: rec.ID, Username: rec.Username, Roles: rec.Roles, Attributes: rec.Attributes}
}

func parseLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	var req loginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
			return req, errors.NewInvalidArgumentError("Invalid request body", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, errors.NewInvalidArgumentError("Invalid request body", err)
		}
		req.Username, req.Password = r.PostForm.Get("username"), r.PostForm.Get("password")
	}
	if req.Username == "" || req.Password == "" {
		return req, errors.NewInvalidArgumentError("username and password are required", nil)
	}
	return req, nil
}

func requestSession(r *http.Request) (*session.Session, error) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return nil, errors.NewInternalError("session middleware not installed", nil)
	}
	return sess, nil
}

// login
//
//	@Summary		Log in
//	@Description	Authenticate with username and password and start a session
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	identityResponse
//	@Failure		400		{object}	map[string]any	"Bad Request"
//	@Failure		401		{object}	map[string]any	"Unauthorized"
//	@Router			/auth/login [post]
func (a *AuthRoutes) login(w http.ResponseWriter, r *http.Request) error {
	sess, err := requestSession(r)
	if err != nil {
		return err
	}
	req, err := parseLogin(w, r)
	if err != nil {
		return err
	}

	identity, err := a.identifier.IdentifyPassword(r.Context(), req.Username, req.Password)
	if err != nil && !apiclient.IsUnauthorized(err) {
		return err
	}
	if identity == nil {
		return errors.NewUnauthorizedError("Invalid credentials", nil)
	}

	if err := auth.Login(sess, a.newID(), identity); err != nil {
		return errors.NewInternalError("failed to store identity", err)
	}
	logger.Infow("user logged in", "user", identity.ID())
	apierrors.WriteJSON(w, http.StatusOK, newIdentityResponse(identity))
	return nil
}

// logout
//
//	@Summary		Log out
//	@Tags			auth
//	@Success		204	{string}	string	"No Content"
//	@Router			/auth/logout [post]
func (*AuthRoutes) logout(w http.ResponseWriter, r *http.Request) error {
	sess, err := requestSession(r)
	if err != nil {
		return err
	}
	auth.Logout(sess)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// me
//
//	@Summary		Current identity
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	identityResponse
//	@Failure		401	{object}	map[string]any	"Unauthorized"
//	@Router			/auth/me [get]
func (*AuthRoutes) me(w http.ResponseWriter, r *http.Request) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return errors.NewUnauthorizedError("missing identity", nil)
	}
	apierrors.WriteJSON(w, http.StatusOK, newIdentityResponse(identity))
	return nil
}
