// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/cmsproxy/pkg/apiclient/mocks"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

func TestMedia_Thumbs(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Thumbs(gomock.Any(), "42", url.Values{"size": {"small"}}).
		Return(mustParse(t, `{"data": {"type": "thumbs", "id": "42", "attributes": {"href": "`+upstreamBase+`/files/42.png"}}}`), nil)

	h := MediaRouter(client, Pipeline{APIBaseURL: upstreamBase, PublicBaseURL: "https://cms.example.com/api"})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/thumbs/42?size=small", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", decodeBody(t, rec)["data"].(map[string]any)["id"])
}

func TestMedia_UploadStreamsBody(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	var received string
	client.EXPECT().Upload(gomock.Any(), "photo.jpg", gomock.Any(), http.Header{"Content-Type": {"image/jpeg"}}).
		DoAndReturn(func(_ context.Context, _ string, body io.Reader, _ http.Header) (*jsonapi.Document, error) {
			raw, err := io.ReadAll(body)
			if err != nil {
				return nil, err
			}
			received = string(raw)
			return mustParse(t, `{"data": {"type": "files", "id": "3"}}`), nil
		})

	h := MediaRouter(client, Pipeline{})
	req := httptest.NewRequest(http.MethodPost, "/upload/photo.jpg", strings.NewReader("jpeg-bytes"))
	req.Header.Set("Content-Type", "image/jpeg")
	rec := serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", received)
	assert.Equal(t, "3", decodeBody(t, rec)["data"].(map[string]any)["id"])
}
