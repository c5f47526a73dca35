// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package api exposes the service over HTTP using the Chi router:
// resource management, job submission and streaming, and bundle download.
package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/atelier/internal/cache"
	"github.com/tomtom215/atelier/internal/logging"
	"github.com/tomtom215/atelier/internal/resource"
	"github.com/tomtom215/atelier/internal/service"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeUpstream      = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, payload APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to encode API response")
	}
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{Success: false, Error: &APIError{Code: code, Message: message}})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resource.ErrNotFound),
		errors.Is(err, resource.ErrIndexOutOfRange),
		errors.Is(err, cache.ErrNotFound),
		errors.Is(err, service.ErrJobNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, resource.ErrDuplicateResource):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, resource.ErrNumericName),
		errors.Is(err, resource.ErrUnknownKind),
		errors.Is(err, service.ErrReservedWord),
		errors.Is(err, service.ErrInvalidDetail),
		errors.Is(err, service.ErrNoModels):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, service.ErrModelOutdated):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	default:
		logging.Error().Err(err).Msg("Unhandled service error")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}
