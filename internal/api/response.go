// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/validation"
)

// APIResponse is the standardized response wrapper for all API endpoints.
type APIResponse struct {
	// Success indicates whether the request was successful
	Success bool `json:"success"`

	// Data contains the response payload (null on error)
	Data interface{} `json:"data,omitempty"`

	// Error contains error details (null on success)
	Error *APIError `json:"error,omitempty"`

	// Meta contains optional metadata about the response
	Meta *APIMeta `json:"meta,omitempty"`
}

// APIError represents an error response.
type APIError struct {
	// Code is a machine-readable error code
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details contains additional error details (optional)
	Details interface{} `json:"details,omitempty"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Count     *int      `json:"count,omitempty"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeNoBaseBackup     = "NO_BASE_BACKUP"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeUnavailable      = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimited      = "RATE_LIMITED"
)

func meta(r *http.Request) *APIMeta {
	return &APIMeta{
		RequestID: logging.RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	}
}

// respondJSON marshals response with goccy/go-json and writes it.
func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, status, &APIResponse{Success: true, Data: data, Meta: meta(r)})
}

func respondList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	m := meta(r)
	n := len(items)
	m.Count = &n
	respondJSON(w, http.StatusOK, &APIResponse{Success: true, Data: items, Meta: m})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	respondJSON(w, status, &APIResponse{
		Error: &APIError{Code: code, Message: message, Details: details},
		Meta:  meta(r),
	})
}

// respondErr maps domain errors onto status codes.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, verr.Error(), verr.Fields())
	case errors.Is(err, backup.ErrUnknownRoutine), errors.Is(err, jobs.ErrNoRunningJob):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, err.Error(), nil)
	case errors.Is(err, jobs.ErrJobAlreadyRunning):
		respondError(w, r, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	case errors.Is(err, backup.ErrNoBaseBackup):
		respondError(w, r, http.StatusUnprocessableEntity, ErrCodeNoBaseBackup, err.Error(), nil)
	case errors.Is(err, backup.ErrInvalidRequest), errors.Is(err, errBadRequest):
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
	case errors.Is(err, backup.ErrManagerClosed):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error(), nil)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("API request failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "internal error", nil)
	}
}
