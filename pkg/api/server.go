// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api assembles the cmsproxy HTTP server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/stacklok/cmsproxy/pkg/api/errors"
	v1 "github.com/stacklok/cmsproxy/pkg/api/v1"
	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/auth"
	"github.com/stacklok/cmsproxy/pkg/auth/oauth"
	"github.com/stacklok/cmsproxy/pkg/authz"
	cmserrors "github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/logger"
	"github.com/stacklok/cmsproxy/pkg/session"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	maxBodySize       = 100 << 20
)

// Authorization controllers.
const (
	ControllerAPI   = "Api"
	ControllerMedia = "Media"
)

// Options are the collaborators of the HTTP server.
type Options struct {
	Client        apiclient.Client
	Identifier    v1.PasswordIdentifier
	Sessions      *session.Manager
	Authorizer    *authz.Authorizer
	Authenticator *oauth.Authenticator
	// CachedReader serves proxied GETs when set.
	CachedReader    v1.CachedGetter
	Pipeline        v1.Pipeline
	DefaultRedirect string
	HealthChecks    []v1.HealthCheck
	// Gatherer exposes /metrics when set.
	Gatherer prometheus.Gatherer
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/media/") {
			w.Header().Set("Content-Type", apierrors.ContentType)
		}
		next.ServeHTTP(w, r)
	})
}

// requestBodySizeLimitMiddleware rejects bodies larger than maxSize.
func requestBodySizeLimitMiddleware(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxSize {
				apierrors.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": map[string]any{
					"status": fmt.Sprint(http.StatusRequestEntityTooLarge),
					"title":  http.StatusText(http.StatusRequestEntityTooLarge),
				}})
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	apierrors.WriteError(w, &apiclient.Error{Status: http.StatusNotFound, Title: http.StatusText(http.StatusNotFound)})
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Client == nil || opts.Sessions == nil || opts.Authorizer == nil {
		return nil, cmserrors.NewConfigurationError("client, sessions and authorizer are required", nil)
	}
	if opts.Pipeline.APIBaseURL == "" {
		opts.Pipeline.APIBaseURL = opts.Client.BaseURL()
	}
	identifier := opts.Identifier
	if identifier == nil {
		identifier = auth.NewAPIIdentifier(opts.Client)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
		requestBodySizeLimitMiddleware(maxBodySize),
		opts.Sessions.Middleware,
		auth.Middleware(opts.Client),
	)
	r.NotFound(notFound)

	routers := map[string]http.Handler{
		"/health":  v1.HealthcheckRouter(opts.HealthChecks...),
		"/version": v1.VersionRouter(),
		"/auth":    v1.AuthRouter(identifier, opts.Sessions.NewID),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	r.With(authz.Middleware(opts.Authorizer, ControllerAPI, authz.MethodAction)).
		Mount("/api", v1.ProxyRouter(opts.Client, opts.CachedReader, opts.Pipeline))
	r.With(authz.Middleware(opts.Authorizer, ControllerMedia, mediaAction)).
		Mount("/media", v1.MediaRouter(opts.Client, opts.Pipeline))

	if opts.Authenticator != nil {
		r.Mount("/ext/login", v1.ExtLoginRouter(opts.Authenticator, opts.Sessions.NewID, opts.DefaultRedirect))
	}
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r, nil
}

// mediaAction names media actions after the first path segment under /media.
func mediaAction(r *http.Request) string {
	rest := strings.TrimPrefix(r.URL.Path, "/media/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// Serve serves handler on address until ctx is cancelled, then shuts down
// gracefully. It is assumed that the caller sets up appropriate signal handling.
func Serve(ctx context.Context, address string, handler http.Handler) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return serve(ctx, listener, handler)
}

func serve(ctx context.Context, listener net.Listener, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infow("starting HTTP server", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("HTTP server stopped")
	return nil
}
