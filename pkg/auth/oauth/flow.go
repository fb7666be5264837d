// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/logger"
	"github.com/stacklok/cmsproxy/pkg/session"
)

// State is a step of the authorization-code flow.
type State string

// Flow states. IDENTIFIED and FAILED are terminal.
const (
	StateStart            State = "START"
	StateAwaitingCallback State = "AWAITING_CALLBACK"
	StateTokenExchanged   State = "TOKEN_EXCHANGED"
	StateIdentified       State = "IDENTIFIED"
	StateFailed           State = "FAILED"
)

// Status is the outcome of a completed flow.
type Status string

// Flow outcomes.
const (
	StatusSuccess                 Status = "SUCCESS"
	StatusFailureIdentityNotFound Status = "FAILURE_IDENTITY_NOT_FOUND"
)

const (
	// DefaultSessionKey is the session key holding the CSRF state token.
	DefaultSessionKey = "oauth2.state"
	// DefaultRedirectPath is the callback path template.
	DefaultRedirectPath = "/ext/login/{provider}"

	stateTokenBytes     = 32
	redirectParam       = "redirect"
	providerPlaceholder = "{provider}"
)

// Result is the outcome of one Authenticate call. A result carrying AuthURL
// means the browser must be redirected there; nothing else is set.
type Result struct {
	State    State
	Status   Status
	AuthURL  string
	Identity *auth.Identity
}

// Redirect reports whether the result asks for a redirect to the provider.
func (r *Result) Redirect() bool {
	return r != nil && r.AuthURL != ""
}

// FlowConfig configures the Authenticator.
type FlowConfig struct {
	// SessionKey stores the CSRF state token.
	SessionKey string
	// RedirectPath is the callback path template; {provider} is replaced.
	RedirectPath string
	// PublicBaseURL is the externally visible origin of the callback.
	PublicBaseURL string
}

// Authenticator drives the authorization-code flow against configured providers.
type Authenticator struct {
	providers  *Providers
	identifier auth.ExternalIdentifier
	config     FlowConfig
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(providers *Providers, identifier auth.ExternalIdentifier, config FlowConfig) *Authenticator {
	if config.SessionKey == "" {
		config.SessionKey = DefaultSessionKey
	}
	if config.RedirectPath == "" {
		config.RedirectPath = DefaultRedirectPath
	}
	config.PublicBaseURL = strings.TrimRight(config.PublicBaseURL, "/")
	return &Authenticator{providers: providers, identifier: identifier, config: config}
}

// SessionKey returns the session key holding the state token.
func (a *Authenticator) SessionKey() string {
	return a.config.SessionKey
}

// Authenticate runs the step of the flow the request corresponds to. Without
// a code it starts the flow; with one it completes it. err is set only for
// transitions into FAILED.
func (a *Authenticator) Authenticate(
	ctx context.Context, r *http.Request, sess *session.Session, providerName string,
) (*Result, error) {
	provider, fieldMap, err := a.providers.Get(providerName)
	if err != nil {
		return &Result{State: StateFailed}, err
	}

	redirectURI := a.RedirectURI(r, providerName)
	query := r.URL.Query()
	code := query.Get("code")
	if code == "" {
		return a.start(provider, sess, redirectURI)
	}

	if err := a.verifyState(sess, query.Get("state")); err != nil {
		return &Result{State: StateFailed}, err
	}

	token, err := provider.Exchange(ctx, code, redirectURI)
	if err != nil {
		return &Result{State: StateFailed}, errors.NewUpstreamError("oauth2 token exchange failed", err)
	}
	owner, err := provider.ResourceOwner(ctx, token)
	if err != nil {
		return &Result{State: StateFailed}, errors.NewUpstreamError("oauth2 resource owner lookup failed", err)
	}
	logger.Debugw("oauth2 token exchanged", "provider", providerName)

	fields := MapFields(owner, fieldMap)
	creds := auth.ExternalCredentials{
		AuthProvider:     providerName,
		ProviderUsername: stringField(fields, FieldProviderUsername),
		AccessToken:      token.AccessToken,
		ProviderUserdata: owner,
	}
	identity, err := a.identifier.Identify(ctx, creds)
	if err != nil {
		return &Result{State: StateFailed}, err
	}
	if identity == nil {
		return &Result{State: StateIdentified, Status: StatusFailureIdentityNotFound}, nil
	}
	return &Result{State: StateIdentified, Status: StatusSuccess, Identity: identity}, nil
}

func (a *Authenticator) start(provider Provider, sess *session.Session, redirectURI string) (*Result, error) {
	state, err := newStateToken()
	if err != nil {
		return &Result{State: StateFailed}, errors.NewInternalError("failed to generate state", err)
	}
	if err := sess.Write(a.config.SessionKey, state); err != nil {
		return &Result{State: StateFailed}, errors.NewInternalError("failed to store state", err)
	}
	return &Result{State: StateAwaitingCallback, AuthURL: provider.AuthCodeURL(state, redirectURI)}, nil
}

// verifyState consumes the stored token whatever the outcome.
func (a *Authenticator) verifyState(sess *session.Session, received string) error {
	expected := sess.ReadString(a.config.SessionKey)
	sess.Delete(a.config.SessionKey)

	if received == "" || expected == "" ||
		subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
		return errors.NewInvalidArgumentError("Invalid state", nil)
	}
	return nil
}

// RedirectURI builds the callback URI for providerName, forwarding the
// request's redirect parameter.
func (a *Authenticator) RedirectURI(r *http.Request, providerName string) string {
	base := a.config.PublicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	uri := base + strings.ReplaceAll(a.config.RedirectPath, providerPlaceholder, url.PathEscape(providerName))
	if redirect := r.URL.Query().Get(redirectParam); redirect != "" {
		uri += "?" + url.Values{redirectParam: {redirect}}.Encode()
	}
	return uri
}

func newStateToken() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
