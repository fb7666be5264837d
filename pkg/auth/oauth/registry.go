// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// Setup keys understood by the built-in provider classes.
const (
	SetupClientID                = "client_id"
	SetupClientSecret            = "client_secret"
	SetupURLAuthorize            = "url_authorize"
	SetupURLAccessToken          = "url_access_token"
	SetupURLResourceOwnerDetails = "url_resource_owner_details"
)

// FieldProviderUsername is the field map entry naming the provider's user key.
const FieldProviderUsername = "provider_username"

// ProviderConfig configures one external provider.
type ProviderConfig struct {
	// Class selects the registered provider implementation.
	Class string `yaml:"class" json:"class"`
	// Setup holds client credentials and endpoint URLs.
	Setup map[string]string `yaml:"setup" json:"setup"`
	// Options tunes the authorization request.
	Options ProviderOptions `yaml:"options" json:"options"`
	// Map maps local field names to provider profile fields (dot paths).
	Map map[string]string `yaml:"map" json:"map"`
}

// ProviderOptions tunes the authorization request.
type ProviderOptions struct {
	Scope      []string          `yaml:"scope" json:"scope"`
	AuthParams map[string]string `yaml:"auth_params" json:"auth_params"`
}

// ProviderFactory builds a Provider from its configuration.
type ProviderFactory func(cfg ProviderConfig, opts ...OAuth2ProviderOption) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// Register adds a provider class. It panics if class is already registered.
func Register(class string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[class]; exists {
		panic(fmt.Sprintf("oauth provider class %q is already registered", class))
	}
	factories[class] = factory
}

// GetFactory returns the factory for class, or nil.
func GetFactory(class string) ProviderFactory {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return factories[class]
}

// RegisteredClasses returns the registered provider classes, sorted.
func RegisteredClasses() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	classes := make([]string, 0, len(factories))
	for class := range factories {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

func init() {
	Register("github", endpointFactory(endpoints.GitHub, "https://api.github.com/user", []string{"read:user", "user:email"}))
	Register("google", endpointFactory(endpoints.Google, "https://openidconnect.googleapis.com/v1/userinfo",
		[]string{"openid", "email", "profile"}))
	Register("oauth2", genericFactory)
}

func clientConfig(cfg ProviderConfig, endpoint oauth2.Endpoint, defaultScopes []string) (oauth2.Config, error) {
	if cfg.Setup[SetupClientID] == "" {
		return oauth2.Config{}, fmt.Errorf("setup.%s is required", SetupClientID)
	}
	scopes := cfg.Options.Scope
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return oauth2.Config{
		ClientID:     cfg.Setup[SetupClientID],
		ClientSecret: cfg.Setup[SetupClientSecret],
		Endpoint:     endpoint,
		Scopes:       scopes,
	}, nil
}

func newConfigured(
	config oauth2.Config, userInfoURL string, cfg ProviderConfig, opts ...OAuth2ProviderOption,
) *OAuth2Provider {
	p := NewOAuth2Provider(config, userInfoURL, opts...)
	p.authParams = cfg.Options.AuthParams
	return p
}

// endpointFactory builds providers with well-known endpoints. Setup URLs,
// when present, override them.
func endpointFactory(endpoint oauth2.Endpoint, userInfoURL string, defaultScopes []string) ProviderFactory {
	return func(cfg ProviderConfig, opts ...OAuth2ProviderOption) (Provider, error) {
		if u := cfg.Setup[SetupURLAuthorize]; u != "" {
			endpoint.AuthURL = u
		}
		if u := cfg.Setup[SetupURLAccessToken]; u != "" {
			endpoint.TokenURL = u
		}
		if u := cfg.Setup[SetupURLResourceOwnerDetails]; u != "" {
			userInfoURL = u
		}
		config, err := clientConfig(cfg, endpoint, defaultScopes)
		if err != nil {
			return nil, err
		}
		return newConfigured(config, userInfoURL, cfg, opts...), nil
	}
}

func genericFactory(cfg ProviderConfig, opts ...OAuth2ProviderOption) (Provider, error) {
	for _, key := range []string{SetupURLAuthorize, SetupURLAccessToken, SetupURLResourceOwnerDetails} {
		if cfg.Setup[key] == "" {
			return nil, fmt.Errorf("setup.%s is required", key)
		}
	}
	config, err := clientConfig(cfg, oauth2.Endpoint{
		AuthURL:  cfg.Setup[SetupURLAuthorize],
		TokenURL: cfg.Setup[SetupURLAccessToken],
	}, nil)
	if err != nil {
		return nil, err
	}
	return newConfigured(config, cfg.Setup[SetupURLResourceOwnerDetails], cfg, opts...), nil
}

// BuildProvider validates cfg and creates its provider.
func BuildProvider(cfg ProviderConfig, opts ...OAuth2ProviderOption) (Provider, error) {
	if cfg.Class == "" {
		return nil, fmt.Errorf("class is required")
	}
	if len(cfg.Setup) == 0 {
		return nil, fmt.Errorf("setup is required")
	}
	factory := GetFactory(cfg.Class)
	if factory == nil {
		return nil, fmt.Errorf("unknown provider class %q (registered: %v)", cfg.Class, RegisteredClasses())
	}
	return factory(cfg, opts...)
}

type configuredProvider struct {
	provider Provider
	fieldMap map[string]string
}

// Providers is the set of configured providers, keyed by name.
type Providers struct {
	providers map[string]configuredProvider
	invalid   map[string]error
}

// NewProviders builds every configured provider. Entries that fail to build
// are kept aside: requests naming them are rejected and Invalid reports why.
func NewProviders(cfgs map[string]ProviderConfig, opts ...OAuth2ProviderOption) *Providers {
	p := &Providers{
		providers: make(map[string]configuredProvider, len(cfgs)),
		invalid:   map[string]error{},
	}
	for name, cfg := range cfgs {
		provider, err := BuildProvider(cfg, opts...)
		if err != nil {
			logger.Warnw("oauth provider disabled", "provider", name, "error", err)
			p.invalid[name] = err
			continue
		}
		p.Add(name, provider, cfg.Map)
	}
	return p
}

// Add registers a ready provider under name.
func (p *Providers) Add(name string, provider Provider, fieldMap map[string]string) {
	p.providers[name] = configuredProvider{provider: provider, fieldMap: fieldMap}
}

// Get returns the provider and field map for name. Unknown or invalid
// providers are a client error.
func (p *Providers) Get(name string) (Provider, map[string]string, error) {
	cp, ok := p.providers[name]
	if !ok {
		return nil, nil, errors.NewInvalidArgumentError(fmt.Sprintf("Invalid auth provider %s", name), nil)
	}
	return cp.provider, cp.fieldMap, nil
}

// Names returns the usable provider names, sorted.
func (p *Providers) Names() []string {
	names := make([]string, 0, len(p.providers))
	for name := range p.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invalid returns the build error of each disabled provider.
func (p *Providers) Invalid() map[string]error {
	return p.invalid
}
