package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error codes written by the middleware.
const (
	CodeAuthenticationRequired  = "authentication_required"
	CodeInvalidToken            = "invalid_token"
	CodeInsufficientPermissions = "insufficient_permissions"
	CodeRateLimited             = "rate_limited"
	CodeServiceUnavailable      = "service_unavailable"
	CodeInternal                = "internal_error"
)

// WriteError writes {"error": code, "message": message} with status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: code, Message: message})
}

func writeInternal(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
}
