// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/cmsproxy/pkg/auth"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	a, err := Compile(Config{Rules: map[string]any{
		"Api": map[string]any{"get": "reader", "*": "editor"},
	}})
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(a, "Api", MethodAction)(ok)

	tests := []struct {
		name       string
		method     string
		identity   *auth.Identity
		wantStatus int
		wantTitle  string
	}{
		{name: "reader get", method: http.MethodGet, identity: identity("reader"), wantStatus: http.StatusOK},
		{name: "reader post", method: http.MethodPost, identity: identity("reader"), wantStatus: http.StatusForbidden,
			wantTitle: ReasonMissingRole},
		{name: "editor delete", method: http.MethodDelete, identity: identity("editor"), wantStatus: http.StatusOK},
		{name: "anonymous", method: http.MethodGet, wantStatus: http.StatusUnauthorized, wantTitle: ReasonMissingIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/api/articles", nil)
			req = req.WithContext(auth.WithIdentity(req.Context(), tt.identity))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantTitle == "" {
				return
			}
			var body map[string]map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantTitle, body["error"]["title"])
		})
	}
}

func TestStaticAction(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, "upload", StaticAction("upload")(r))
	assert.Equal(t, "post", MethodAction(r))
}
