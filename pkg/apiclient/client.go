// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package apiclient provides the client used to talk to the upstream content
// API. Every proxied operation is an explicit method on [Client].
package apiclient

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

// Client is the upstream API surface used by cmsproxy.
type Client interface {
	// BaseURL returns the upstream base URL, used for link masking.
	BaseURL() string
	// Get fetches path with the given query.
	Get(ctx context.Context, path string, query url.Values, headers http.Header) (*jsonapi.Document, error)
	// Post sends body to path.
	Post(ctx context.Context, path string, body []byte, headers http.Header) (*jsonapi.Document, error)
	// Patch sends body to path.
	Patch(ctx context.Context, path string, body []byte, headers http.Header) (*jsonapi.Document, error)
	// Delete deletes path. body may be nil.
	Delete(ctx context.Context, path string, body []byte, headers http.Header) (*jsonapi.Document, error)
	// Authenticate exchanges credentials for tokens, returned in meta.jwt and meta.renew.
	Authenticate(ctx context.Context, username, password string) (*jsonapi.Document, error)
	// Renew exchanges a renew token for fresh tokens.
	Renew(ctx context.Context, renewToken string) (*jsonapi.Document, error)
	// Thumbs requests thumbnails for one or more media ids.
	Thumbs(ctx context.Context, id string, query url.Values) (*jsonapi.Document, error)
	// Upload streams a file to the API.
	Upload(ctx context.Context, filename string, body io.Reader, headers http.Header) (*jsonapi.Document, error)
}

// Error is a failure reported by the upstream API. Status is HTTP-like and
// Attributes holds any further members of the upstream error object.
type Error struct {
	Status     int
	Title      string
	Attributes map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream API error %d: %s", e.Status, e.Title)
}

// HTTPStatus returns the status when err is, or wraps, an *Error.
func HTTPStatus(err error) (int, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}

// IsUnauthorized reports whether the upstream rejected the credentials.
func IsUnauthorized(err error) bool {
	status, ok := HTTPStatus(err)
	return ok && status == http.StatusUnauthorized
}

// parseError builds an *Error from an upstream error body of the form
// {"error": {"status": "401", "title": "...", ...}}. The HTTP status is used
// when the body carries none.
func parseError(statusCode int, body []byte) *Error {
	apiErr := &Error{Status: statusCode, Title: http.StatusText(statusCode)}

	var envelope struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return apiErr
	}

	for k, v := range envelope.Error {
		switch k {
		case "status":
			if s, ok := statusValue(v); ok {
				apiErr.Status = s
			}
		case "title":
			if t, ok := v.(string); ok && t != "" {
				apiErr.Title = t
			}
		default:
			if apiErr.Attributes == nil {
				apiErr.Attributes = map[string]any{}
			}
			apiErr.Attributes[k] = v
		}
	}
	return apiErr
}

func statusValue(v any) (int, bool) {
	switch s := v.(type) {
	case string:
		n, err := strconv.Atoi(s)
		return n, err == nil
	case float64:
		return int(s), true
	}
	return 0, false
}
