// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apiclient

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

// Tokens are the credentials the upstream API issues on authentication.
type Tokens struct {
	JWT   string `json:"jwt"`
	Renew string `json:"renew,omitempty"`
}

// TokensFromDocument reads tokens from the meta member of an auth response.
func TokensFromDocument(doc *jsonapi.Document) Tokens {
	return Tokens{JWT: doc.MetaString("jwt"), Renew: doc.MetaString("renew")}
}

// Empty reports whether no JWT is present.
func (t Tokens) Empty() bool {
	return t.JWT == ""
}

// Expired reports whether the JWT is past its exp claim at now. The signature
// is not verified; the upstream API does that. Tokens that cannot be parsed or
// carry no exp claim are treated as not expired.
func (t Tokens) Expired(now time.Time) bool {
	if t.JWT == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.JWT, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

type tokensContextKey struct{}

// WithTokens returns a context whose upstream calls authenticate with tokens.
func WithTokens(ctx context.Context, tokens Tokens) context.Context {
	return context.WithValue(ctx, tokensContextKey{}, tokens)
}

// TokensFromContext returns the tokens stored by WithTokens.
func TokensFromContext(ctx context.Context) (Tokens, bool) {
	tokens, ok := ctx.Value(tokensContextKey{}).(Tokens)
	return tokens, ok
}
