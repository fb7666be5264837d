// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apiclient_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/apiclient/mocks"
	"github.com/stacklok/cmsproxy/pkg/jsonapi"
)

func TestSoftClient_CapturesAndContinues(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	notFound := &apiclient.Error{Status: http.StatusNotFound, Title: "Not Found"}
	ok := &jsonapi.Document{Meta: map[string]any{"status": "ok"}}

	gomock.InOrder(
		client.EXPECT().Get(gomock.Any(), "/missing", nil, nil).Return(nil, notFound),
		client.EXPECT().Get(gomock.Any(), "/status", nil, nil).Return(ok, nil),
		client.EXPECT().Delete(gomock.Any(), "/documents/1", nil, nil).Return(nil, nil),
	)

	soft := apiclient.NewSoftClient(client)
	ctx := context.Background()

	assert.Nil(t, soft.Get(ctx, "/missing", nil, nil))
	assert.Same(t, ok, soft.Get(ctx, "/status", nil, nil))
	assert.Nil(t, soft.Delete(ctx, "/documents/1", nil, nil))

	require.ErrorIs(t, soft.Err(), notFound)
	assert.Len(t, soft.Errors(), 1)

	soft.Reset()
	assert.NoError(t, soft.Err())
	assert.Empty(t, soft.Errors())
}

func TestSoftClient_LatestErrorWins(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	first := &apiclient.Error{Status: http.StatusBadRequest, Title: "first"}
	second := &apiclient.Error{Status: http.StatusConflict, Title: "second"}
	client.EXPECT().Post(gomock.Any(), "/a", gomock.Any(), gomock.Any()).Return(nil, first)
	client.EXPECT().Patch(gomock.Any(), "/b", gomock.Any(), gomock.Any()).Return(nil, second)

	soft := apiclient.NewSoftClient(client)
	soft.Post(context.Background(), "/a", []byte(`{}`), nil)
	soft.Patch(context.Background(), "/b", []byte(`{}`), nil)

	assert.Equal(t, second, soft.Err())
	assert.Equal(t, []error{first, second}, soft.Errors())
}
