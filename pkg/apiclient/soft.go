// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

// SoftClient wraps a Client so that failures are recorded instead of
// returned. Callers run a batch of calls and inspect Err afterwards. A failed
// call returns a nil document.
type SoftClient struct {
	client Client

	mu     sync.Mutex
	errs   []error
	latest error
}

// NewSoftClient wraps client.
func NewSoftClient(client Client) *SoftClient {
	return &SoftClient{client: client}
}

// Err returns the most recent captured error, or nil.
func (s *SoftClient) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Errors returns every captured error in call order.
func (s *SoftClient) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// Reset forgets captured errors.
func (s *SoftClient) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = nil
	s.latest = nil
}

func (s *SoftClient) capture(doc *jsonapi.Document, err error) *jsonapi.Document {
	if err == nil {
		return doc
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	s.latest = err
	return nil
}

// Get calls Client.Get.
func (s *SoftClient) Get(ctx context.Context, path string, query url.Values, headers http.Header) *jsonapi.Document {
	return s.capture(s.client.Get(ctx, path, query, headers))
}

// Post calls Client.Post.
func (s *SoftClient) Post(ctx context.Context, path string, body []byte, headers http.Header) *jsonapi.Document {
	return s.capture(s.client.Post(ctx, path, body, headers))
}

// Patch calls Client.Patch.
func (s *SoftClient) Patch(ctx context.Context, path string, body []byte, headers http.Header) *jsonapi.Document {
	return s.capture(s.client.Patch(ctx, path, body, headers))
}

// Delete calls Client.Delete.
func (s *SoftClient) Delete(ctx context.Context, path string, body []byte, headers http.Header) *jsonapi.Document {
	return s.capture(s.client.Delete(ctx, path, body, headers))
}

// Authenticate calls Client.Authenticate.
func (s *SoftClient) Authenticate(ctx context.Context, username, password string) *jsonapi.Document {
	return s.capture(s.client.Authenticate(ctx, username, password))
}

// Thumbs calls Client.Thumbs.
func (s *SoftClient) Thumbs(ctx context.Context, id string, query url.Values) *jsonapi.Document {
	return s.capture(s.client.Thumbs(ctx, id, query))
}

// Upload calls Client.Upload.
func (s *SoftClient) Upload(ctx context.Context, filename string, body io.Reader, headers http.Header) *jsonapi.Document {
	return s.capture(s.client.Upload(ctx, filename, body, headers))
}
