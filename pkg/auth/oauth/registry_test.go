// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmserrors "github.com/stacklok/cmsproxy/pkg/errors"
)

func TestRegisteredClasses(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"github", "google", "oauth2"}, RegisteredClasses())
}

func TestRegister_DuplicatePanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		Register("github", genericFactory)
	})
}

func TestBuildProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantErr string
	}{
		{
			name: "github",
			cfg:  ProviderConfig{Class: "github", Setup: map[string]string{SetupClientID: "id"}},
		},
		{
			name:    "missing class",
			cfg:     ProviderConfig{Setup: map[string]string{SetupClientID: "id"}},
			wantErr: "class is required",
		},
		{
			name:    "missing setup",
			cfg:     ProviderConfig{Class: "github"},
			wantErr: "setup is required",
		},
		{
			name:    "unknown class",
			cfg:     ProviderConfig{Class: "myspace", Setup: map[string]string{SetupClientID: "id"}},
			wantErr: `unknown provider class "myspace"`,
		},
		{
			name:    "missing client id",
			cfg:     ProviderConfig{Class: "google", Setup: map[string]string{SetupClientSecret: "s"}},
			wantErr: "setup.client_id is required",
		},
		{
			name:    "generic without urls",
			cfg:     ProviderConfig{Class: "oauth2", Setup: map[string]string{SetupClientID: "id"}},
			wantErr: "setup.url_authorize is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := BuildProvider(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestBuildProvider_GitHubEndpoints(t *testing.T) {
	t.Parallel()

	p, err := BuildProvider(ProviderConfig{
		Class:   "github",
		Setup:   map[string]string{SetupClientID: "id"},
		Options: ProviderOptions{AuthParams: map[string]string{"allow_signup": "false"}},
	})
	require.NoError(t, err)

	u, err := url.Parse(p.AuthCodeURL("st", "https://cms.example.com/ext/login/github"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "read:user user:email", u.Query().Get("scope"))
	assert.Equal(t, "false", u.Query().Get("allow_signup"))
	assert.Equal(t, "st", u.Query().Get("state"))
}

func TestProviders(t *testing.T) {
	t.Parallel()

	providers := NewProviders(map[string]ProviderConfig{
		"github": {Class: "github", Setup: map[string]string{SetupClientID: "id"}, Map: map[string]string{"provider_username": "login"}},
		"broken": {Class: "github"},
	})

	assert.Equal(t, []string{"github"}, providers.Names())
	require.Contains(t, providers.Invalid(), "broken")

	p, fields, err := providers.Get("github")
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, "login", fields["provider_username"])

	for _, name := range []string{"broken", "missing"} {
		_, _, err := providers.Get(name)
		require.Error(t, err)
		assert.True(t, cmserrors.IsInvalidArgument(err))
		assert.Contains(t, err.Error(), "Invalid auth provider "+name)
	}
}
