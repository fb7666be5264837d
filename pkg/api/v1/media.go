// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/cmsproxy/pkg/api/errors"
	"github.com/stacklok/cmsproxy/pkg/apiclient"
)

// MediaRoutes defines the media routes.
type MediaRoutes struct {
	client   apiclient.Client
	pipeline Pipeline
}

// MediaRouter creates a router for thumbnails and uploads.
func MediaRouter(client apiclient.Client, pipeline Pipeline) http.Handler {
	routes := MediaRoutes{client: client, pipeline: pipeline}

	r := chi.NewRouter()
	r.Get("/thumbs/{id}", apierrors.ErrorHandler(routes.thumbs))
	r.Post("/upload/{filename}", apierrors.ErrorHandler(routes.upload))
	return r
}

// thumbs
//
//	@Summary		Get thumbnails
//	@Description	Request thumbnails for one or more media ids
//	@Tags			media
//	@Produce		json
//	@Param			id	path		string	true	"Media id"
//	@Success		200	{object}	jsonapi.Document
//	@Router			/media/thumbs/{id} [get]
func (m *MediaRoutes) thumbs(w http.ResponseWriter, r *http.Request) error {
	doc, err := m.client.Thumbs(r.Context(), chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		return err
	}
	m.pipeline.write(w, r, doc)
	return nil
}

// upload
//
//	@Summary		Upload a file
//	@Description	Stream the request body to the API as filename
//	@Tags			media
//	@Produce		json
//	@Param			filename	path		string	true	"File name"
//	@Success		200			{object}	jsonapi.Document
//	@Router			/media/upload/{filename} [post]
func (m *MediaRoutes) upload(w http.ResponseWriter, r *http.Request) error {
	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	defer body.Close()

	doc, err := m.client.Upload(r.Context(), chi.URLParam(r, "filename"), body, upstreamHeaders(r))
	if err != nil {
		return err
	}
	m.pipeline.write(w, r, doc)
	return nil
}
