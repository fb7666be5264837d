// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/cmsproxy/pkg/jsonapi"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

const (
	// MediaTypeJSONAPI is sent as Accept on every request.
	MediaTypeJSONAPI = "application/vnd.api+json"

	// APIKeyHeader carries the static API key.
	APIKeyHeader = "X-Api-Key"

	defaultTimeout      = 30 * time.Second
	defaultRetries      = 2
	defaultInitialDelay = 200 * time.Millisecond
	maxResponseSize     = 32 << 20
)

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL      *url.URL
	apiKey       string
	httpClient   *http.Client
	retries      int
	initialDelay time.Duration
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithAPIKey sets the key sent in the X-Api-Key header.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets how many times a failed GET is retried.
func WithRetries(n int, initialDelay time.Duration) Option {
	return func(c *HTTPClient) {
		c.retries = n
		if initialDelay > 0 {
			c.initialDelay = initialDelay
		}
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme must be http or https", baseURL)
	}

	c := &HTTPClient{
		baseURL:      u,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		retries:      defaultRetries,
		initialDelay: defaultInitialDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL implements Client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL.String()
}

// Get implements Client. Gateway errors and transport failures are retried
// with exponential backoff.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values, headers http.Header) (*jsonapi.Document, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.initialDelay
	expBackoff.MaxInterval = 20 * c.initialDelay

	operation := func() (*jsonapi.Document, error) {
		doc, err := c.do(ctx, http.MethodGet, path, query, nil, headers)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return doc, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.retries+1)), // #nosec G115 -- includes the initial attempt
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugw("retrying upstream GET", "path", path, "delay", d, "error", err)
		}),
	)
}

// Post implements Client.
func (c *HTTPClient) Post(ctx context.Context, path string, body []byte, headers http.Header) (*jsonapi.Document, error) {
	return c.do(ctx, http.MethodPost, path, nil, bodyReader(body), headers)
}

// Patch implements Client.
func (c *HTTPClient) Patch(ctx context.Context, path string, body []byte, headers http.Header) (*jsonapi.Document, error) {
	return c.do(ctx, http.MethodPatch, path, nil, bodyReader(body), headers)
}

// Delete implements Client.
func (c *HTTPClient) Delete(ctx context.Context, path string, body []byte, headers http.Header) (*jsonapi.Document, error) {
	return c.do(ctx, http.MethodDelete, path, nil, bodyReader(body), headers)
}

// Authenticate implements Client. Any tokens carried by ctx are ignored.
func (c *HTTPClient) Authenticate(ctx context.Context, username, password string) (*jsonapi.Document, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	return c.do(WithTokens(ctx, Tokens{}), http.MethodPost, "/auth", nil, bytes.NewReader(body), nil)
}

// Renew implements Client.
func (c *HTTPClient) Renew(ctx context.Context, renewToken string) (*jsonapi.Document, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+renewToken)
	return c.do(WithTokens(ctx, Tokens{}), http.MethodPost, "/auth", nil, nil, headers)
}

// Thumbs implements Client.
func (c *HTTPClient) Thumbs(ctx context.Context, id string, query url.Values) (*jsonapi.Document, error) {
	return c.Get(ctx, "/media/thumbs/"+url.PathEscape(id), query, nil)
}

// Upload implements Client.
func (c *HTTPClient) Upload(ctx context.Context, filename string, body io.Reader, headers http.Header) (*jsonapi.Document, error) {
	return c.do(ctx, http.MethodPost, "/streams/upload/"+url.PathEscape(filename), nil, body, headers)
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *HTTPClient) do(
	ctx context.Context, method, path string, query url.Values, body io.Reader, headers http.Header,
) (*jsonapi.Document, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", MediaTypeJSONAPI)
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	if tokens, ok := TokensFromContext(ctx); ok && !tokens.Empty() && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+tokens.JWT)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &transportError{err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, parseError(resp.StatusCode, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &jsonapi.Document{}, nil
	}

	doc, err := jsonapi.Parse(raw)
	if err != nil {
		return nil, &Error{Status: http.StatusBadGateway, Title: "Invalid upstream response"}
	}
	return doc, nil
}

type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return "upstream request failed: " + e.err.Error()
}

func (e *transportError) Unwrap() error {
	return e.err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	status, ok := HTTPStatus(err)
	if !ok {
		return false
	}
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}
