// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

// ExternalCredentials identify a user authenticated by an external OAuth2
// provider to the upstream API.
type ExternalCredentials struct {
	AuthProvider     string         `json:"auth_provider"`
	ProviderUsername string         `json:"provider_username"`
	AccessToken      string         `json:"access_token"`
	ProviderUserdata map[string]any `json:"provider_userdata"`
}

// ExternalIdentifier resolves external credentials to a local identity.
// A nil identity with a nil error means no such user exists.
type ExternalIdentifier interface {
	Identify(ctx context.Context, creds ExternalCredentials) (*Identity, error)
}

// APIIdentifier authenticates users against the upstream API.
type APIIdentifier struct {
	client apiclient.Client
}

// NewAPIIdentifier creates an identifier using client.
func NewAPIIdentifier(client apiclient.Client) *APIIdentifier {
	return &APIIdentifier{client: client}
}

// IdentifyPassword logs a user in with username and password.
func (a *APIIdentifier) IdentifyPassword(ctx context.Context, username, password string) (*Identity, error) {
	doc, err := a.client.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return a.fromAuthResponse(ctx, doc)
}

// Identify logs a user in with credentials from an external provider.
func (a *APIIdentifier) Identify(ctx context.Context, creds ExternalCredentials) (*Identity, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	doc, err := a.client.Post(apiclient.WithTokens(ctx, apiclient.Tokens{}), "/auth", body, nil)
	if err != nil {
		return nil, err
	}
	return a.fromAuthResponse(ctx, doc)
}

func (a *APIIdentifier) fromAuthResponse(ctx context.Context, doc *jsonapi.Document) (*Identity, error) {
	tokens := apiclient.TokensFromDocument(doc)
	if tokens.Empty() {
		return nil, nil
	}
	return a.LoadUser(ctx, tokens)
}

// LoadUser fetches the user owning tokens, with roles.
func (a *APIIdentifier) LoadUser(ctx context.Context, tokens apiclient.Tokens) (*Identity, error) {
	doc, err := a.client.Get(apiclient.WithTokens(ctx, tokens), "/auth/user", url.Values{"include": {"roles"}}, nil)
	if err != nil {
		return nil, err
	}
	user := jsonapi.EmbedIncluded(doc).Data.Resource()
	if user == nil {
		return nil, nil
	}

	attrs := user.Attributes()
	username, _ := attrs["username"].(string)
	return NewIdentity(Record{
		ID:         user.ID(),
		Username:   username,
		Attributes: attrs,
		Tokens:     tokens,
		Roles:      roleNames(user),
	}), nil
}

// roleNames reads role names from an embedded roles relationship.
func roleNames(user jsonapi.Resource) []string {
	rel, ok := user.Relationships()["roles"].(map[string]any)
	if !ok {
		return nil
	}
	items, ok := rel["data"].([]any)
	if !ok {
		return nil
	}
	var roles []string
	for _, item := range items {
		role, ok := item.(map[string]any)
		if !ok {
			continue
		}
		attrs, _ := role["attributes"].(map[string]any)
		if name, ok := attrs["name"].(string); ok && name != "" {
			roles = append(roles, name)
		}
	}
	return roles
}
