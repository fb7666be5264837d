// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth implements login through external OAuth2 providers: the
// authorization-code flow with single-use state, resource-owner lookup and
// mapping of the provider profile onto upstream API credentials.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// UserAgent is sent to providers on resource-owner requests.
	UserAgent = "cmsproxy/1.0"

	maxProfileSize = 1 << 20
)

// Provider is an external OAuth2 identity provider.
type Provider interface {
	// AuthCodeURL returns the provider URL the browser is sent to.
	AuthCodeURL(state, redirectURI string, opts ...AuthorizationOption) string
	// Exchange trades an authorization code for a token.
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
	// ResourceOwner fetches the profile of the token's owner.
	ResourceOwner(ctx context.Context, token *oauth2.Token) (map[string]any, error)
}

// AuthorizationOption configures authorization URL generation.
type AuthorizationOption func(*authorizationOptions)

type authorizationOptions struct {
	additionalParams map[string]string
}

// WithAdditionalParams adds custom parameters to the authorization URL.
func WithAdditionalParams(params map[string]string) AuthorizationOption {
	return func(o *authorizationOptions) {
		if o.additionalParams == nil {
			o.additionalParams = make(map[string]string)
		}
		for k, v := range params {
			o.additionalParams[k] = v
		}
	}
}

// OAuth2Provider is a Provider over golang.org/x/oauth2 with a JSON
// resource-owner endpoint.
type OAuth2Provider struct {
	config      oauth2.Config
	userInfoURL string
	authParams  map[string]string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// OAuth2ProviderOption configures an OAuth2Provider.
type OAuth2ProviderOption func(*OAuth2Provider)

// WithHTTPClient sets the client used for token and profile requests.
func WithHTTPClient(client *http.Client) OAuth2ProviderOption {
	return func(p *OAuth2Provider) {
		p.httpClient = client
	}
}

// WithRateLimit limits resource-owner requests to the provider.
func WithRateLimit(perSecond float64, burst int) OAuth2ProviderOption {
	return func(p *OAuth2Provider) {
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewOAuth2Provider creates a provider with the given client config and
// resource-owner URL.
func NewOAuth2Provider(config oauth2.Config, userInfoURL string, opts ...OAuth2ProviderOption) *OAuth2Provider {
	p := &OAuth2Provider{
		config:      config,
		userInfoURL: userInfoURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(10, 20),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OAuth2Provider) configFor(redirectURI string) *oauth2.Config {
	cfg := p.config
	cfg.RedirectURL = redirectURI
	return &cfg
}

func (p *OAuth2Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthCodeURL implements Provider.
func (p *OAuth2Provider) AuthCodeURL(state, redirectURI string, opts ...AuthorizationOption) string {
	o := &authorizationOptions{}
	WithAdditionalParams(p.authParams)(o)
	for _, opt := range opts {
		opt(o)
	}

	authOpts := make([]oauth2.AuthCodeOption, 0, len(o.additionalParams))
	for k, v := range o.additionalParams {
		authOpts = append(authOpts, oauth2.SetAuthURLParam(k, v))
	}
	return p.configFor(redirectURI).AuthCodeURL(state, authOpts...)
}

// Exchange implements Provider.
func (p *OAuth2Provider) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	token, err := p.configFor(redirectURI).Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return token, nil
}

// ResourceOwner implements Provider.
func (p *OAuth2Provider) ResourceOwner(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource owner request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	client := p.config.Client(p.clientContext(ctx), token)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resource owner request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read resource owner response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resource owner request returned status %d", resp.StatusCode)
	}

	var owner map[string]any
	if err := json.Unmarshal(body, &owner); err != nil {
		return nil, fmt.Errorf("failed to decode resource owner: %w", err)
	}
	return owner, nil
}
