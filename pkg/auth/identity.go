// Package auth provides identities for authenticated users of the upstream
// API and the middleware that keeps them on the request context.
package auth

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/stacklok/cmsproxy/pkg/apiclient"
)

// Record is the persisted form of an Identity, as stored in the session.
// It carries tokens in clear and must never be logged.
type Record struct {
	ID         string           `json:"id"`
	Username   string           `json:"username"`
	Attributes map[string]any   `json:"attributes,omitempty"`
	Tokens     apiclient.Tokens `json:"tokens"`
	Roles      []string         `json:"roles,omitempty"`
}

// Identity is an authenticated API user. It is immutable; use WithTokens to
// derive an identity carrying renewed tokens.
type Identity struct {
	rec Record
}

// NewIdentity builds an Identity from rec. rec is copied.
func NewIdentity(rec Record) *Identity {
	return &Identity{rec: copyRecord(rec)}
}

func copyRecord(rec Record) Record {
	out := rec
	out.Roles = slices.Clone(rec.Roles)
	if rec.Attributes != nil {
		out.Attributes = make(map[string]any, len(rec.Attributes))
		for k, v := range rec.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// ID returns the user id.
func (i *Identity) ID() string { return i.rec.ID }

// Username returns the user name.
func (i *Identity) Username() string { return i.rec.Username }

// Tokens returns the upstream API tokens.
func (i *Identity) Tokens() apiclient.Tokens { return i.rec.Tokens }

// Roles returns a copy of the role names.
func (i *Identity) Roles() []string { return slices.Clone(i.rec.Roles) }

// Attribute returns a user attribute.
func (i *Identity) Attribute(name string) (any, bool) {
	v, ok := i.rec.Attributes[name]
	return v, ok
}

// HasRole reports whether the identity has role name.
func (i *Identity) HasRole(name string) bool {
	return i != nil && slices.Contains(i.rec.Roles, name)
}

// HasAnyRole reports whether the identity has at least one of names.
func (i *Identity) HasAnyRole(names ...string) bool {
	for _, name := range names {
		if i.HasRole(name) {
			return true
		}
	}
	return false
}

// WithTokens returns a copy of the identity carrying tokens.
func (i *Identity) WithTokens(tokens apiclient.Tokens) *Identity {
	rec := copyRecord(i.rec)
	rec.Tokens = tokens
	return &Identity{rec: rec}
}

// Record returns the persistable form of the identity.
func (i *Identity) Record() Record {
	return copyRecord(i.rec)
}

// String returns a string representation with tokens omitted.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{ID:%q, Username:%q, Roles:%v}", i.rec.ID, i.rec.Username, i.rec.Roles)
}

// MarshalJSON implements json.Marshaler with tokens redacted.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	type safeIdentity struct {
		ID         string         `json:"id"`
		Username   string         `json:"username"`
		Attributes map[string]any `json:"attributes,omitempty"`
		Roles      []string       `json:"roles"`
		Token      string         `json:"token,omitempty"`
	}

	token := ""
	if !i.rec.Tokens.Empty() {
		token = "REDACTED"
	}

	roles := i.rec.Roles
	if roles == nil {
		roles = []string{}
	}
	return json.Marshal(&safeIdentity{
		ID:         i.rec.ID,
		Username:   i.rec.Username,
		Attributes: i.rec.Attributes,
		Roles:      roles,
		Token:      token,
	})
}
