// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// SignupPath is the upstream endpoint creating users.
const SignupPath = "/signup"

// SignupConfig configures automatic account creation for external users.
type SignupConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Roles   []string          `yaml:"roles" json:"roles"`
	Map     map[string]string `yaml:"map" json:"map"`
}

// SignupIdentifier identifies external users, creating the account first when
// the upstream does not know them yet.
type SignupIdentifier struct {
	next   auth.ExternalIdentifier
	client apiclient.Client
	config SignupConfig
}

// NewSignupIdentifier wraps next with auto-signup.
func NewSignupIdentifier(next auth.ExternalIdentifier, client apiclient.Client, config SignupConfig) *SignupIdentifier {
	return &SignupIdentifier{next: next, client: client, config: config}
}

// Identify implements auth.ExternalIdentifier. An upstream 401 means the user
// is unknown: with auto-signup disabled that is a not-found result, otherwise
// the account is created and the login retried once.
func (s *SignupIdentifier) Identify(ctx context.Context, creds auth.ExternalCredentials) (*auth.Identity, error) {
	identity, err := s.next.Identify(ctx, creds)
	if err == nil || !apiclient.IsUnauthorized(err) {
		return identity, err
	}
	if !s.config.Enabled {
		return nil, nil
	}

	logger.Infow("external user unknown, signing up",
		"provider", creds.AuthProvider, "provider_username", creds.ProviderUsername)
	if err := s.signup(ctx, creds); err != nil {
		return nil, fmt.Errorf("auto-signup failed: %w", err)
	}
	return s.next.Identify(ctx, creds)
}

func (s *SignupIdentifier) signup(ctx context.Context, creds auth.ExternalCredentials) error {
	attributes := MapFields(creds.ProviderUserdata, s.config.Map)
	attributes["auth_provider"] = creds.AuthProvider
	attributes["provider_username"] = creds.ProviderUsername
	attributes["access_token"] = creds.AccessToken
	attributes["provider_userdata"] = creds.ProviderUserdata
	if len(s.config.Roles) > 0 {
		attributes["roles"] = s.config.Roles
	}

	body, err := json.Marshal(map[string]any{
		"data": map[string]any{"type": "users", "attributes": attributes},
	})
	if err != nil {
		return err
	}
	_, err = s.client.Post(apiclient.WithTokens(ctx, apiclient.Tokens{}), SignupPath, body, nil)
	return err
}
