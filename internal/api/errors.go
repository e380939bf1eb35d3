// Package api holds the HTTP handlers of the matchcore API and its JSON
// error envelope.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/matchcore/internal/matching"
	"github.com/onnwee/matchcore/internal/middleware"
)

// Error codes returned in the envelope.
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeAuthFailed      = "auth_failed"
	ErrCodeNotFound        = "not_found"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternal        = "internal_error"
	ErrCodeInvalidContext  = "invalid_context"
	ErrCodeUserNotFound    = "user_not_found"
	ErrCodePoolUnavailable = "unavailable"
)

// poolRetryAfter is sent with 503 responses while the candidate pool is unavailable.
const poolRetryAfter = "5"

// ErrorResponse is the body of every error: {"error":{"code":...,"message":...}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable machine code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the error envelope and records code for the access log.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	middleware.UpdateResponseContext(w, middleware.SetErrorCode(r.Context(), code))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}); err != nil {
		slog.ErrorContext(r.Context(), "failed to write error response", "error", err)
	}
}

// serviceError describes how a matching error is reported.
type serviceError struct {
	target  error
	status  int
	code    string
	message string // empty: derive from the error
}

// serviceErrors is checked in order; the first errors.Is match wins.
var serviceErrors = []serviceError{
	{matching.ErrInvalidContext, http.StatusBadRequest, ErrCodeInvalidContext, "context must be pulse or zone"},
	{matching.ErrValidation, http.StatusBadRequest, ErrCodeValidation, ""},
	{matching.ErrUserNotFound, http.StatusNotFound, ErrCodeUserNotFound, "User not found"},
	{matching.ErrTargetNotFound, http.StatusNotFound, ErrCodeNotFound, "Target user not found"},
	{matching.ErrCandidatePoolUnavailable, http.StatusServiceUnavailable, ErrCodePoolUnavailable, "Recommendations are temporarily unavailable"},
}

// writeServiceError maps an error from the matching service onto the envelope.
// Unknown errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, se := range serviceErrors {
		if !errors.Is(err, se.target) {
			continue
		}
		message := se.message
		if message == "" {
			message = strings.TrimPrefix(err.Error(), matching.ErrValidation.Error()+": ")
		}
		if se.status == http.StatusServiceUnavailable {
			slog.WarnContext(r.Context(), "candidate pool unavailable", "error", err)
			w.Header().Set("Retry-After", poolRetryAfter)
		}
		WriteError(w, r, se.status, se.code, message)
		return
	}

	slog.ErrorContext(r.Context(), "recommendation request failed", "error", err)
	WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
}
