// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session provides cookie-identified server-side sessions stored in
// a cache partition.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Session holds per-browser values. Changes are saved when the response is written.
type Session struct {
	mu        sync.Mutex
	id        string
	values    map[string]json.RawMessage
	dirty     bool
	destroyed bool
	renewed   string
}

func newSession(id string, values map[string]json.RawMessage) *Session {
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	return &Session{id: id, values: values}
}

// New returns an unsaved session; used by callers that run outside the middleware.
func New(id string) *Session {
	return newSession(id, nil)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Read decodes the value under key into out. It reports whether key exists.
func (s *Session) Read(key string, out any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("session value %q: %w", key, err)
	}
	return true, nil
}

// ReadString returns the string stored under key, or "" when absent or not a string.
func (s *Session) ReadString(key string) string {
	var v string
	if ok, err := s.Read(key, &v); !ok || err != nil {
		return ""
	}
	return v
}

// Write stores value under key.
func (s *Session) Write(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session value %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	s.dirty = true
	return nil
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Destroy drops every value and removes the session from the store.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]json.RawMessage{}
	s.destroyed = true
	s.dirty = true
}

// Renew moves the session to a new ID, keeping its values. Call it when the
// privilege level changes, e.g. on login.
func (s *Session) Renew(newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renewed == "" {
		s.renewed = s.id
	}
	s.id = newID
	s.dirty = true
}

type sessionContextKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session attached by the middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}
