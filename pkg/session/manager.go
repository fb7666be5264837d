// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/cmsproxy/pkg/cache"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// Defaults for Options.
const (
	DefaultCookieName = "cmsproxy_session"
	DefaultPartition  = "sessions"
	DefaultTTL        = 24 * time.Hour
)

// Options configures a Manager.
type Options struct {
	CookieName string
	Partition  string
	TTL        time.Duration
	Secure     bool
}

// Manager loads and saves sessions around HTTP requests.
type Manager struct {
	store cache.Store
	opts  Options
	newID func() string
}

// NewManager creates a Manager storing sessions in store.
func NewManager(store cache.Store, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Partition == "" {
		opts.Partition = DefaultPartition
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	return &Manager{store: store, opts: opts, newID: uuid.NewString}
}

// NewID returns a fresh session identifier.
func (m *Manager) NewID() string {
	return m.newID()
}

// Load returns the session for the request cookie, or a new empty session.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return newSession(m.newID(), nil), nil
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return newSession(m.newID(), nil), nil
	}

	raw, found, err := m.store.Read(ctx, cookie.Value, m.opts.Partition)
	if err != nil {
		return nil, err
	}
	if !found {
		return newSession(m.newID(), nil), nil
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		logger.Warnw("discarding unreadable session", "error", err)
		return newSession(m.newID(), nil), nil
	}
	return newSession(cookie.Value, values), nil
}

// Save persists s and sets or clears the cookie on w.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	s.dirty = false

	if s.renewed != "" {
		if err := m.store.Delete(ctx, s.renewed, m.opts.Partition); err != nil {
			return err
		}
		s.renewed = ""
	}

	if s.destroyed {
		http.SetCookie(w, m.cookie("", -1))
		return m.store.Delete(ctx, s.id, m.opts.Partition)
	}

	raw, err := json.Marshal(s.values)
	if err != nil {
		return err
	}
	if err := m.store.Write(ctx, s.id, raw, m.opts.Partition); err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(s.id, int(m.opts.TTL.Seconds())))
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Middleware attaches the request's session to the context and saves it
// before the response header is sent.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Load(r.Context(), r)
		if err != nil {
			logger.Errorw("failed to load session", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		cw := &commitWriter{ResponseWriter: w, commit: func() {
			if err := m.Save(r.Context(), w, s); err != nil {
				logger.Errorw("failed to save session", "error", err)
			}
		}}
		next.ServeHTTP(cw, r.WithContext(WithSession(r.Context(), s)))
		cw.ensureCommitted()
	})
}

type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *commitWriter) ensureCommitted() {
	if !w.committed {
		w.committed = true
		w.commit()
	}
}

func (w *commitWriter) WriteHeader(code int) {
	w.ensureCommitted()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.ensureCommitted()
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
