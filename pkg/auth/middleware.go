// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
	"github.com/stacklok/cmsproxy/pkg/logger"
	"github.com/stacklok/cmsproxy/pkg/session"
)

// SessionKey is the session key holding the logged-in identity.
const SessionKey = "auth.identity"

// Renewer exchanges a renew token for fresh tokens.
type Renewer interface {
	Renew(ctx context.Context, renewToken string) (*jsonapi.Document, error)
}

// Login stores identity in sess under a new session ID.
func Login(sess *session.Session, newID string, identity *Identity) error {
	sess.Renew(newID)
	return sess.Write(SessionKey, identity.Record())
}

// Logout drops the session.
func Logout(sess *session.Session) {
	sess.Destroy()
}

// Middleware loads the identity from the request session and puts it on the
// context. Expired JWTs are renewed; if renewal fails the user is logged out.
// It must run after the session middleware.
func Middleware(renewer Renewer) func(http.Handler) http.Handler {
	return middleware(renewer, time.Now)
}

func middleware(renewer Renewer, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			var rec Record
			found, err := sess.Read(SessionKey, &rec)
			if err != nil {
				logger.Warnw("dropping unreadable identity from session", "error", err)
				sess.Delete(SessionKey)
			}
			if !found || err != nil {
				next.ServeHTTP(w, r)
				return
			}

			identity := NewIdentity(rec)
			if identity.Tokens().Expired(now()) {
				identity = renew(r.Context(), renewer, sess, identity)
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// renew returns the identity with fresh tokens, or nil after logging the
// user out when renewal is impossible.
func renew(ctx context.Context, renewer Renewer, sess *session.Session, identity *Identity) *Identity {
	current := identity.Tokens()
	if current.Renew == "" {
		sess.Delete(SessionKey)
		return nil
	}

	doc, err := renewer.Renew(ctx, current.Renew)
	if err != nil {
		logger.Infow("token renewal failed, logging out", "user", identity.ID(), "error", err)
		sess.Delete(SessionKey)
		return nil
	}

	fresh := apiclient.TokensFromDocument(doc)
	if fresh.Empty() {
		sess.Delete(SessionKey)
		return nil
	}
	if fresh.Renew == "" {
		fresh.Renew = current.Renew
	}

	renewed := identity.WithTokens(fresh)
	if err := sess.Write(SessionKey, renewed.Record()); err != nil {
		logger.Warnw("failed to store renewed tokens", "error", err)
	}
	return renewed
}
