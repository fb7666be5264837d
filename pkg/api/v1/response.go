// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	apierrors "github.com/stacklok/cmsproxy/pkg/api/errors"
	"github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

const (
	maxRequestBodySize = 10 << 20
	maxUploadSize      = 100 << 20
)

// forwardedHeaders are copied from the client request to the upstream.
var forwardedHeaders = []string{"Content-Type", "Accept-Language"}

// Pipeline post-processes upstream documents before they reach the client.
type Pipeline struct {
	// APIBaseURL is the upstream base URL replaced by link masking.
	APIBaseURL string
	// PublicBaseURL replaces APIBaseURL. When empty it is derived from the
	// request as scheme://host/api.
	PublicBaseURL string
	// EmbedIncluded resolves relationships against the included resources.
	EmbedIncluded bool
	// Clean lists the sections stripped from responses. Empty keeps all.
	Clean []jsonapi.Section
}

// Apply runs embed, then mask, then clean.
func (p Pipeline) Apply(r *http.Request, doc *jsonapi.Document) *jsonapi.Document {
	if p.EmbedIncluded {
		doc = jsonapi.EmbedIncluded(doc)
	}
	doc = jsonapi.NewLinkMasker(p.APIBaseURL, p.publicBaseURL(r)).Mask(doc)
	if len(p.Clean) > 0 {
		doc = jsonapi.Clean(doc, p.Clean...)
	}
	return doc
}

func (p Pipeline) publicBaseURL(r *http.Request) string {
	if p.PublicBaseURL != "" {
		return strings.TrimRight(p.PublicBaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s/api", scheme, r.Host)
}

func (p Pipeline) write(w http.ResponseWriter, r *http.Request, doc *jsonapi.Document) {
	if doc == nil {
		doc = &jsonapi.Document{}
	}
	apierrors.WriteJSON(w, http.StatusOK, p.Apply(r, doc))
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, errors.NewInvalidArgumentError("Invalid request body", err)
	}
	return body, nil
}

func upstreamHeaders(r *http.Request) http.Header {
	var h http.Header
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			if h == nil {
				h = http.Header{}
			}
			h.Set(name, v)
		}
	}
	return h
}
