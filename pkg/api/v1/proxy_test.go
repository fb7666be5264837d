// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/apiclient/mocks"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

const upstreamBase = "https://api.internal:8443/v2"

func mustParse(t *testing.T, raw string) *jsonapi.Document {
	t.Helper()
	doc, err := jsonapi.Parse([]byte(raw))
	require.NoError(t, err)
	return doc
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

type getterFunc func(ctx context.Context, path string, query url.Values) (*jsonapi.Document, error)

func (f getterFunc) Get(ctx context.Context, path string, query url.Values) (*jsonapi.Document, error) {
	return f(ctx, path, query)
}

func TestProxy_GetForwardsPathAndQuery(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().
		Get(gomock.Any(), "/articles/7", url.Values{"include": {"author"}}, http.Header{"Accept-Language": {"de"}}).
		Return(mustParse(t, `{"data": {"type": "articles", "id": "7", "links": {"self": "`+upstreamBase+`/articles/7"}}}`), nil)

	h := ProxyRouter(client, nil, Pipeline{APIBaseURL: upstreamBase, PublicBaseURL: "https://cms.example.com/api/"})
	req := httptest.NewRequest(http.MethodGet, "/articles/7?include=author", nil)
	req.Header.Set("Accept-Language", "de")
	rec := serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "https://cms.example.com/api/articles/7", data["links"].(map[string]any)["self"])
}

func TestProxy_GetUsesCache(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	var gotPath string
	var gotQuery url.Values
	cached := getterFunc(func(_ context.Context, path string, query url.Values) (*jsonapi.Document, error) {
		gotPath, gotQuery = path, query
		return mustParse(t, `{"data": []}`), nil
	})

	h := ProxyRouter(client, cached, Pipeline{APIBaseURL: upstreamBase})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/articles?page=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/articles", gotPath)
	assert.Equal(t, url.Values{"page": {"2"}}, gotQuery)
}

func TestProxy_WriteVerbs(t *testing.T) {
	t.Parallel()

	body := `{"data": {"type": "articles", "attributes": {"title": "New"}}}`
	response := `{"data": {"type": "articles", "id": "9"}}`

	tests := []struct {
		method string
		expect func(m *mocks.MockClientMockRecorder) *gomock.Call
	}{
		{http.MethodPost, func(m *mocks.MockClientMockRecorder) *gomock.Call {
			return m.Post(gomock.Any(), "/articles", []byte(body), http.Header{"Content-Type": {"application/vnd.api+json"}})
		}},
		{http.MethodPatch, func(m *mocks.MockClientMockRecorder) *gomock.Call {
			return m.Patch(gomock.Any(), "/articles", []byte(body), http.Header{"Content-Type": {"application/vnd.api+json"}})
		}},
		{http.MethodDelete, func(m *mocks.MockClientMockRecorder) *gomock.Call {
			return m.Delete(gomock.Any(), "/articles", []byte(body), http.Header{"Content-Type": {"application/vnd.api+json"}})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			client := mocks.NewMockClient(ctrl)
			tt.expect(client.EXPECT()).Return(mustParse(t, response), nil)

			h := ProxyRouter(client, nil, Pipeline{APIBaseURL: upstreamBase})
			req := httptest.NewRequest(tt.method, "/articles", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/vnd.api+json")
			rec := serve(h, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "9", decodeBody(t, rec)["data"].(map[string]any)["id"])
		})
	}
}

func TestProxy_UpstreamError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Get(gomock.Any(), "/articles", gomock.Any(), gomock.Any()).
		Return(nil, &apiclient.Error{Status: 422, Title: "Bad filter", Attributes: map[string]any{"detail": "page"}})

	h := ProxyRouter(client, nil, Pipeline{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/articles", nil))

	assert.Equal(t, 422, rec.Code)
	assert.Equal(t, map[string]any{"status": "422", "title": "Bad filter", "detail": "page"}, decodeBody(t, rec)["error"])
}

func TestProxy_EmptyUpstreamBody(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Delete(gomock.Any(), "/articles/1", gomock.Any(), gomock.Any()).Return(&jsonapi.Document{}, nil)

	h := ProxyRouter(client, nil, Pipeline{APIBaseURL: upstreamBase})
	rec := serve(h, httptest.NewRequest(http.MethodDelete, "/articles/1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}
