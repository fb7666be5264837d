// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides HTTP error handling utilities for the API.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/stacklok/cmsproxy/pkg/apiclient"
	"github.com/stacklok/cmsproxy/pkg/errors"
	"github.com/stacklok/cmsproxy/pkg/logger"
)

// ContentType is the content type of every response written by the API.
const ContentType = "application/json"

// HandlerWithError is an HTTP handler that can return an error.
// This signature allows handlers to return errors instead of manually
// writing error responses, enabling centralized error handling.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts returned errors
// into error envelopes.
//
// Usage:
//
//	r.Get("/*", apierrors.ErrorHandler(routes.get))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			WriteError(w, err)
		}
	}
}

// Envelope builds the error body for err: {"error": {"status", "title", ...}}.
// Upstream API errors keep their title and extra attributes. Other 5xx
// errors get a generic title.
func Envelope(err error) (int, map[string]any) {
	body := map[string]any{}

	var status int
	var title string
	var apiErr *apiclient.Error
	if stderrors.As(err, &apiErr) {
		for k, v := range apiErr.Attributes {
			body[k] = v
		}
		status, title = ClampStatus(apiErr.Status), apiErr.Title
	} else {
		status = ClampStatus(errors.Code(err))
		title = message(err)
		if status >= http.StatusInternalServerError {
			title = http.StatusText(status)
		}
	}
	if title == "" {
		title = http.StatusText(status)
	}

	body["status"] = strconv.Itoa(status)
	body["title"] = title
	return status, map[string]any{"error": body}
}

// WriteError writes the error envelope for err.
func WriteError(w http.ResponseWriter, err error) {
	status, body := Envelope(err)
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "status", status, "error", err)
	} else {
		logger.Debugw("request rejected", "status", status, "error", err)
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("failed to encode response", "error", err)
	}
}

// ClampStatus returns code when it is a valid HTTP status and 500 otherwise.
func ClampStatus(code int) int {
	if code < 100 || code > 599 {
		return http.StatusInternalServerError
	}
	return code
}

// message prefers the human message of a typed error over its full chain.
func message(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
