// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/cmsproxy/pkg/api/errors"
	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

// CachedGetter serves GET requests from a cache.
type CachedGetter interface {
	Get(ctx context.Context, path string, query url.Values) (*jsonapi.Document, error)
}

// ProxyRoutes defines the routes proxied to the upstream API.
type ProxyRoutes struct {
	client   apiclient.Client
	cached   CachedGetter
	pipeline Pipeline
}

// ProxyRouter creates a router forwarding every verb to the upstream API.
// GETs go through cached when it is not nil.
func ProxyRouter(client apiclient.Client, cached CachedGetter, pipeline Pipeline) http.Handler {
	routes := ProxyRoutes{client: client, cached: cached, pipeline: pipeline}

	r := chi.NewRouter()
	r.Get("/*", apierrors.ErrorHandler(routes.get))
	r.Post("/*", apierrors.ErrorHandler(routes.post))
	r.Patch("/*", apierrors.ErrorHandler(routes.patch))
	r.Delete("/*", apierrors.ErrorHandler(routes.delete))
	return r
}

func upstreamPath(r *http.Request) string {
	return "/" + chi.URLParam(r, "*")
}

// get
//
//	@Summary		Read from the API
//	@Description	Forward a GET to the upstream API, optionally through the cache
//	@Tags			api
//	@Produce		json
//	@Success		200	{object}	jsonapi.Document
//	@Failure		401	{object}	map[string]any	"Unauthorized"
//	@Failure		502	{object}	map[string]any	"Bad Gateway"
//	@Router			/api/{path} [get]
func (p *ProxyRoutes) get(w http.ResponseWriter, r *http.Request) error {
	var doc *jsonapi.Document
	var err error
	if p.cached != nil {
		doc, err = p.cached.Get(r.Context(), upstreamPath(r), r.URL.Query())
	} else {
		doc, err = p.client.Get(r.Context(), upstreamPath(r), r.URL.Query(), upstreamHeaders(r))
	}
	if err != nil {
		return err
	}
	p.pipeline.write(w, r, doc)
	return nil
}

type writeFunc func(ctx context.Context, path string, body []byte, headers http.Header) (*jsonapi.Document, error)

func (p *ProxyRoutes) forward(w http.ResponseWriter, r *http.Request, call writeFunc) error {
	body, err := readBody(w, r, maxRequestBodySize)
	if err != nil {
		return err
	}
	doc, err := call(r.Context(), upstreamPath(r), body, upstreamHeaders(r))
	if err != nil {
		return err
	}
	p.pipeline.write(w, r, doc)
	return nil
}

// post
//
//	@Summary		Create through the API
//	@Tags			api
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	jsonapi.Document
//	@Router			/api/{path} [post]
func (p *ProxyRoutes) post(w http.ResponseWriter, r *http.Request) error {
	return p.forward(w, r, p.client.Post)
}

// patch
//
//	@Summary		Update through the API
//	@Tags			api
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	jsonapi.Document
//	@Router			/api/{path} [patch]
func (p *ProxyRoutes) patch(w http.ResponseWriter, r *http.Request) error {
	return p.forward(w, r, p.client.Patch)
}

// delete
//
//	@Summary		Delete through the API
//	@Tags			api
//	@Produce		json
//	@Success		200	{object}	jsonapi.Document
//	@Router			/api/{path} [delete]
func (p *ProxyRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	return p.forward(w, r, p.client.Delete)
}
