package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/middleware"
	"github.com/maxmusicschool/schoolauth/school"
)

// Error codes written by the handlers, in addition to middleware.Code*.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidRole        = "invalid_role"
	CodeAccountInactive    = "account_inactive"
	CodeAccountOnHold      = "account_on_hold"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeRequestResolved    = "request_resolved"
)

// errBadRequest marks body and query decoding failures.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
	// detail exposes the error text instead of message. Only for errors
	// whose text is written for users.
	detail bool
}

var errorTable = []errorMapping{
	{target: errBadRequest, status: http.StatusBadRequest, code: CodeInvalidRequest, detail: true},
	{target: school.ErrInvalidInput, status: http.StatusBadRequest, code: CodeInvalidRequest, detail: true},
	{target: schoolauth.ErrInvalidRole, status: http.StatusBadRequest, code: CodeInvalidRole, message: "Role must be student or teacher"},
	{target: schoolauth.ErrInvalidCredentials, status: http.StatusUnauthorized, code: CodeInvalidCredentials, message: "Invalid email or password"},
	{target: schoolauth.ErrInvalidToken, status: http.StatusUnauthorized, code: middleware.CodeInvalidToken, message: "Invalid or expired token"},
	{target: schoolauth.ErrInsufficientPermissions, status: http.StatusForbidden, code: middleware.CodeInsufficientPermissions, message: "Insufficient permissions"},
	{target: schoolauth.ErrAccountInactive, status: http.StatusForbidden, code: CodeAccountInactive, message: "Your account is inactive. Please contact your teacher."},
	{target: school.ErrNotFound, status: http.StatusNotFound, code: CodeNotFound, message: "Not found"},
	{target: school.ErrDuplicate, status: http.StatusConflict, code: CodeConflict, message: "A record with this email already exists"},
	{target: school.ErrRequestResolved, status: http.StatusConflict, code: CodeRequestResolved, message: "Request has already been resolved"},
	{target: schoolauth.ErrRateLimited, status: http.StatusTooManyRequests, code: middleware.CodeRateLimited, message: "Too many requests, please try again later"},
	{target: schoolauth.ErrEngineNotReady, status: http.StatusServiceUnavailable, code: middleware.CodeServiceUnavailable, message: "Service unavailable"},
	{target: schoolauth.ErrUpstreamUnavailable, status: http.StatusServiceUnavailable, code: middleware.CodeServiceUnavailable, message: "Service unavailable"},
}

// holdBody is the error body of a login refused because of unpaid fees.
type holdBody struct {
	middleware.ErrorBody
	PendingAmount float64 `json:"pendingAmount"`
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	var hold *schoolauth.AccountHoldError
	if errors.As(err, &hold) {
		writeJSON(w, http.StatusForbidden, holdBody{
			ErrorBody: middleware.ErrorBody{
				Error:   CodeAccountOnHold,
				Message: fmt.Sprintf("Your account is on hold. Please pay ₹%.0f to continue your classes.", hold.PendingAmount),
			},
			PendingAmount: hold.PendingAmount,
		})
		return
	}

	for _, m := range errorTable {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if m.detail {
			msg = userMessage(err, m.target)
		}
		if m.status >= http.StatusInternalServerError {
			a.logger.Warn(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		}
		middleware.WriteError(w, m.status, m.code, msg)
		return
	}

	a.logger.Error(r.Context(), "unhandled error", "method", r.Method, "path", r.URL.Path, "err", err)
	middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Internal server error")
}

// userMessage strips the sentinel prefix added by fmt.Errorf("%w: ...").
func userMessage(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return "Invalid request"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
