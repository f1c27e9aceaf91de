// Package response provides utilities for sending consistent HTTP responses.
// It includes helpers for JSON responses and standardized error responses.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
)

// ErrorResponse represents a structured error response returned by the API.
// The Details field is optional and can contain additional context about the error.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// Sets the Content-Type header to application/json and writes the status code.
// If data is nil, only the status code is sent (useful for 204 No Content).
// Logs encoding errors but does not fail the response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// RespondError sends a structured error response with the given status code.
// The message should be a user-friendly error description.
// The details parameter can be an error string, additional context, or nil.
//
// Example:
//
//	response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
//	response.RespondError(w, http.StatusNotFound, "resource not found", "")
func RespondError(w http.ResponseWriter, status int, message string, details interface{}) {
	response := ErrorResponse{
		Error:   message,
		Details: details,
	}
	RespondJSON(w, status, response)
}

// StatusFor maps a service error onto an HTTP status. Errors without a
// mapping are internal errors.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrSyncRunNotFound),
		errors.Is(err, apperrors.ErrAccountNotFound),
		errors.Is(err, apperrors.ErrSecurityNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrAuthentication):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondServiceError sends err with the status StatusFor picks. Internal
// errors are logged; their text is still returned as details.
//
// Example:
//
//	run, err := h.syncService.GetRun(r.Context(), id)
//	if err != nil {
//	    response.RespondServiceError(w, "failed to retrieve sync run", err)
//	    return
//	}
func RespondServiceError(w http.ResponseWriter, message string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(message)
	}
	RespondError(w, status, message, err.Error())
}
