package schoolauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for every token or refresh-session failure.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInsufficientPermissions is returned when a role is outside the allowed set.
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	// ErrUpstreamUnavailable wraps failures of the backing record store.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited is returned when a rate-limit policy rejects a request.
	ErrRateLimited = errors.New("rate limited")
	// ErrAccountInactive is returned at login for Inactive accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountOnHold is returned at login for accounts on hold. The
	// concrete error is an *AccountHoldError.
	ErrAccountOnHold = errors.New("account on hold")
	// ErrEngineNotReady is returned until Initialize succeeds.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidRole is returned for a login role other than student or teacher.
	ErrInvalidRole = errors.New("invalid role")
	// ErrUserNotFound is returned by Directory implementations for unknown users.
	ErrUserNotFound = errors.New("user not found")
)

// AccountHoldError carries the outstanding amount of an account on hold.
type AccountHoldError struct {
	PendingAmount float64
}

func (e *AccountHoldError) Error() string {
	return fmt.Sprintf("account on hold: %.2f pending", e.PendingAmount)
}

func (e *AccountHoldError) Unwrap() error {
	return ErrAccountOnHold
}
