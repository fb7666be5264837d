// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/cmsproxy/pkg/auth"
	cmserrors "github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/session"
)

var testProfile = map[string]any{
	"login":   "octocat",
	"id":      float64(42),
	"contact": map[string]any{"email": "octo@example.com"},
}

func newTestAuthenticator(t *testing.T, identifier auth.ExternalIdentifier) *Authenticator {
	t.Helper()
	srv := fakeProviderServer(t, testProfile)
	providers := NewProviders(map[string]ProviderConfig{"test": providerConfig(srv)})
	require.Empty(t, providers.Invalid())
	return NewAuthenticator(providers, identifier, FlowConfig{PublicBaseURL: "https://cms.example.com/"})
}

func TestAuthenticate_StartRedirectsWithState(t *testing.T) {
	t.Parallel()

	a := newTestAuthenticator(t, &recordingIdentifier{})
	sess := session.New("sid")
	r := httptest.NewRequest("GET", "/ext/login/test", nil)

	result, err := a.Authenticate(context.Background(), r, sess, "test")
	require.NoError(t, err)
	require.True(t, result.Redirect())
	assert.Equal(t, StateAwaitingCallback, result.State)
	assert.Nil(t, result.Identity)

	authURL, err := url.Parse(result.AuthURL)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", authURL.Path)
	assert.Equal(t, "client", authURL.Query().Get("client_id"))
	assert.Equal(t, "https://cms.example.com/ext/login/test", authURL.Query().Get("redirect_uri"))

	stored := sess.ReadString(DefaultSessionKey)
	require.NotEmpty(t, stored)
	assert.Equal(t, stored, authURL.Query().Get("state"))
}

func TestAuthenticate_StartGeneratesFreshState(t *testing.T) {
	t.Parallel()

	a := newTestAuthenticator(t, &recordingIdentifier{})
	sess := session.New("sid")
	r := httptest.NewRequest("GET", "/ext/login/test", nil)

	_, err := a.Authenticate(context.Background(), r, sess, "test")
	require.NoError(t, err)
	first := sess.ReadString(DefaultSessionKey)

	_, err = a.Authenticate(context.Background(), r, sess, "test")
	require.NoError(t, err)
	assert.NotEqual(t, first, sess.ReadString(DefaultSessionKey))
}

func TestAuthenticate_CallbackIdentifies(t *testing.T) {
	t.Parallel()

	want := auth.NewIdentity(auth.Record{ID: "7", Username: "octocat"})
	identifier := &recordingIdentifier{identity: want}
	a := newTestAuthenticator(t, identifier)

	sess := session.New("sid")
	require.NoError(t, sess.Write(DefaultSessionKey, "expected-state"))
	r := httptest.NewRequest("GET", "/ext/login/test?code=good-code&state=expected-state", nil)

	result, err := a.Authenticate(context.Background(), r, sess, "test")
	require.NoError(t, err)
	assert.False(t, result.Redirect())
	assert.Equal(t, StateIdentified, result.State)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Same(t, want, result.Identity)

	require.Len(t, identifier.calls, 1)
	creds := identifier.calls[0]
	assert.Equal(t, "test", creds.AuthProvider)
	assert.Equal(t, "octocat", creds.ProviderUsername)
	assert.Equal(t, "provider-token", creds.AccessToken)
	assert.Equal(t, testProfile, creds.ProviderUserdata)

	assert.Empty(t, sess.ReadString(DefaultSessionKey), "state must be single use")
}

func TestAuthenticate_ReplayedStateFails(t *testing.T) {
	t.Parallel()

	identifier := &recordingIdentifier{identity: auth.NewIdentity(auth.Record{ID: "7"})}
	a := newTestAuthenticator(t, identifier)

	sess := session.New("sid")
	require.NoError(t, sess.Write(DefaultSessionKey, "expected-state"))
	r := httptest.NewRequest("GET", "/ext/login/test?code=good-code&state=expected-state", nil)

	_, err := a.Authenticate(context.Background(), r, sess, "test")
	require.NoError(t, err)

	result, err := a.Authenticate(context.Background(), r, sess, "test")
	require.Error(t, err)
	assert.True(t, cmserrors.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "Invalid state")
	assert.Equal(t, StateFailed, result.State)
	assert.Len(t, identifier.calls, 1)
}

func TestAuthenticate_InvalidState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stored string
		query  string
	}{
		{name: "mismatch", stored: "Y", query: "code=abc&state=X"},
		{name: "missing in request", stored: "Y", query: "code=abc"},
		{name: "missing in session", query: "code=abc&state=X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			identifier := &recordingIdentifier{}
			a := newTestAuthenticator(t, identifier)
			sess := session.New("sid")
			if tt.stored != "" {
				require.NoError(t, sess.Write(DefaultSessionKey, tt.stored))
			}
			r := httptest.NewRequest("GET", "/ext/login/test?"+tt.query, nil)

			result, err := a.Authenticate(context.Background(), r, sess, "test")
			require.Error(t, err)
			assert.True(t, cmserrors.IsInvalidArgument(err))
			assert.Contains(t, err.Error(), "Invalid state")
			assert.Equal(t, StateFailed, result.State)

			found, readErr := sess.Read(DefaultSessionKey, new(string))
			require.NoError(t, readErr)
			assert.False(t, found, "state must be deleted")
			assert.Empty(t, identifier.calls)
		})
	}
}

func TestAuthenticate_IdentityNotFound(t *testing.T) {
	t.Parallel()

	a := newTestAuthenticator(t, &recordingIdentifier{})
	sess := session.New("sid")
	require.NoError(t, sess.Write(DefaultSessionKey, "s"))
	r := httptest.NewRequest("GET", "/ext/login/test?code=good-code&state=s", nil)

	result, err := a.Authenticate(context.Background(), r, sess, "test")
	require.NoError(t, err)
	assert.Equal(t, StatusFailureIdentityNotFound, result.Status)
	assert.Nil(t, result.Identity)
}

func TestAuthenticate_Failures(t *testing.T) {
	t.Parallel()

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t, &recordingIdentifier{})
		r := httptest.NewRequest("GET", "/ext/login/nope", nil)

		result, err := a.Authenticate(context.Background(), r, session.New("sid"), "nope")
		require.Error(t, err)
		assert.True(t, cmserrors.IsInvalidArgument(err))
		assert.Contains(t, err.Error(), "Invalid auth provider nope")
		assert.Equal(t, StateFailed, result.State)
	})

	t.Run("token exchange rejected", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t, &recordingIdentifier{})
		sess := session.New("sid")
		require.NoError(t, sess.Write(DefaultSessionKey, "s"))
		r := httptest.NewRequest("GET", "/ext/login/test?code=bad-code&state=s", nil)

		result, err := a.Authenticate(context.Background(), r, sess, "test")
		require.Error(t, err)
		assert.True(t, cmserrors.IsUpstream(err))
		assert.Equal(t, StateFailed, result.State)
	})

	t.Run("identifier error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		a := newTestAuthenticator(t, identifierFunc(func(context.Context, auth.ExternalCredentials) (*auth.Identity, error) {
			return nil, boom
		}))
		sess := session.New("sid")
		require.NoError(t, sess.Write(DefaultSessionKey, "s"))
		r := httptest.NewRequest("GET", "/ext/login/test?code=good-code&state=s", nil)

		result, err := a.Authenticate(context.Background(), r, sess, "test")
		require.ErrorIs(t, err, boom)
		assert.Equal(t, StateFailed, result.State)
	})
}

func TestRedirectURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config FlowConfig
		target string
		want   string
	}{
		{
			name:   "public base",
			config: FlowConfig{PublicBaseURL: "https://cms.example.com"},
			target: "/ext/login/github",
			want:   "https://cms.example.com/ext/login/github",
		},
		{
			name:   "redirect forwarded",
			config: FlowConfig{PublicBaseURL: "https://cms.example.com"},
			target: "/ext/login/github?redirect=/dashboard",
			want:   "https://cms.example.com/ext/login/github?redirect=%2Fdashboard",
		},
		{
			name:   "custom template",
			config: FlowConfig{PublicBaseURL: "https://cms.example.com", RedirectPath: "/login/{provider}/callback"},
			target: "/login/github/callback",
			want:   "https://cms.example.com/login/github/callback",
		},
		{
			name:   "derived from request",
			target: "http://proxy.local/ext/login/github",
			want:   "http://proxy.local/ext/login/github",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := NewAuthenticator(NewProviders(nil), nil, tt.config)
			r := httptest.NewRequest("GET", tt.target, nil)
			assert.Equal(t, tt.want, a.RedirectURI(r, "github"))
		})
	}
}
