package flows

import "context"

// LogoutFailureKind classifies logout failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureForbidden
	LogoutFailureRemove
)

type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error
	UserID  string
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	RemoveRefresh func(ctx context.Context, uid string) error
	// MayLogoutOthers reports whether a caller role may end other users'
	// sessions.
	MayLogoutOthers func(role string) bool
}

// RunLogout removes the refresh session of target, defaulting to the
// caller.
func RunLogout(ctx context.Context, callerID, callerRole, target string, deps LogoutDeps) LogoutResult {
	if target == "" {
		target = callerID
	}
	if target != callerID && !deps.MayLogoutOthers(callerRole) {
		return LogoutResult{Failure: LogoutFailureForbidden, UserID: target}
	}
	if err := deps.RemoveRefresh(ctx, target); err != nil {
		return LogoutResult{Failure: LogoutFailureRemove, Err: err, UserID: target}
	}
	return LogoutResult{UserID: target}
}
