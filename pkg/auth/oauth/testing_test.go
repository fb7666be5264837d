// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stacklok/cmsproxy/pkg/auth"
)

// fakeProviderServer serves the authorize, token and user endpoints of an
// OAuth2 provider.
func fakeProviderServer(t *testing.T, profile map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func providerConfig(srv *httptest.Server) ProviderConfig {
	return ProviderConfig{
		Class: "oauth2",
		Setup: map[string]string{
			SetupClientID:                "client",
			SetupClientSecret:            "secret",
			SetupURLAuthorize:            srv.URL + "/authorize",
			SetupURLAccessToken:          srv.URL + "/token",
			SetupURLResourceOwnerDetails: srv.URL + "/user",
		},
		Map: map[string]string{FieldProviderUsername: "login", "email": "contact.email"},
	}
}

// identifierFunc adapts a function to auth.ExternalIdentifier.
type identifierFunc func(ctx context.Context, creds auth.ExternalCredentials) (*auth.Identity, error)

func (f identifierFunc) Identify(ctx context.Context, creds auth.ExternalCredentials) (*auth.Identity, error) {
	return f(ctx, creds)
}

// recordingIdentifier records the credentials it is called with.
type recordingIdentifier struct {
	mu       sync.Mutex
	calls    []auth.ExternalCredentials
	identity *auth.Identity
	err      error
}

func (r *recordingIdentifier) Identify(_ context.Context, creds auth.ExternalCredentials) (*auth.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, creds)
	return r.identity, r.err
}
