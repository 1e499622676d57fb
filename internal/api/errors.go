package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/homedash-core/internal/auth"
	"github.com/nerrad567/homedash-core/internal/control"
	"github.com/nerrad567/homedash-core/internal/device"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes. Store failures reuse the notice kinds so REST and
// WebSocket clients see the same vocabulary.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeAccessDenied = string(control.NoticeAccessDenied)
	ErrCodeUnavailable  = string(control.NoticeUnavailable)
	ErrCodeTimeout      = string(control.NoticeTimeout)
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeControlError maps a surface or store error to a response.
func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrRoomNotFound), errors.Is(err, device.ErrFanNotFound):
		writeNotFound(w, err.Error())
		return
	case errors.Is(err, device.ErrInvalidSpeed):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, control.ErrUnauthenticated):
		writeUnauthorized(w, "sign in required")
		return
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		return
	}

	switch control.Classify(err) {
	case control.NoticeAccessDenied:
		writeError(w, http.StatusForbidden, ErrCodeAccessDenied, "your account is not allowed to change this device")
	case control.NoticeUnavailable:
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device service unavailable")
	case control.NoticeTimeout:
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not respond in time")
	default:
		writeInternalError(w, "request failed")
	}
}

// writeAuthError maps an auth failure to a response without revealing
// which part of the credentials was wrong.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUserInactive),
		errors.Is(err, auth.ErrUserNotFound):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrTokenReuse):
		writeUnauthorized(w, "invalid or expired token")
	default:
		writeInternalError(w, "authentication failed")
	}
}
