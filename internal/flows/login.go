package flows

import (
	"context"
	"strings"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUnknownUser
	LoginFailurePassword
	LoginFailureLookup
	LoginFailureInactive
	LoginFailureHold
	LoginFailureIssue
	LoginFailureSession
)

// LoginResult carries either the issued token pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	User         User
	AccessToken  string
	RefreshToken string
	// Upgraded is set when the stored password hash was replaced.
	Upgraded bool
}

// LoginDeps captures login flow dependencies. UpgradeHash may be nil when
// the directory cannot store rehashed passwords.
type LoginDeps struct {
	LookupByEmail  func(ctx context.Context, role, email string) (User, error)
	IsNotFound     func(error) bool
	VerifyPassword func(password, stored string) (bool, error)
	VerifyDummy    func(password string)
	NeedsRehash    func(stored string) bool
	HashPassword   func(password string) (string, error)
	UpgradeHash    func(ctx context.Context, userID, role, hash string) error
	IssueAccess    func(uid, email, role string) (string, error)
	IssueRefresh   func(uid string) (string, error)
	StoreRefresh   func(ctx context.Context, uid, token string) error
	Warn           func(ctx context.Context, msg string, args ...any)
}

// RunLogin authenticates (role, email, password) and issues a session.
// Unknown users still pay for one password verification.
func RunLogin(ctx context.Context, role, email, password string, deps LoginDeps) LoginResult {
	if deps.Warn == nil {
		deps.Warn = func(context.Context, string, ...any) {}
	}
	email = strings.TrimSpace(email)

	if email == "" || password == "" {
		deps.VerifyDummy(password)
		return LoginResult{Failure: LoginFailurePassword}
	}

	user, err := deps.LookupByEmail(ctx, role, email)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.VerifyDummy(password)
			return LoginResult{Failure: LoginFailureUnknownUser, Err: err}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{Failure: LoginFailurePassword, Err: err, User: user}
	}

	switch user.Status {
	case StatusActive:
	case StatusHold:
		return LoginResult{Failure: LoginFailureHold, User: user}
	default:
		return LoginResult{Failure: LoginFailureInactive, User: user}
	}

	upgraded := false
	if deps.UpgradeHash != nil && deps.NeedsRehash(user.PasswordHash) {
		if hash, err := deps.HashPassword(password); err != nil {
			deps.Warn(ctx, "password rehash failed", "user_id", user.ID, "err", err)
		} else if err := deps.UpgradeHash(ctx, user.ID, user.Role, hash); err != nil {
			deps.Warn(ctx, "password upgrade not stored", "user_id", user.ID, "err", err)
		} else {
			upgraded = true
		}
	}

	access, err := deps.IssueAccess(user.ID, user.Email, user.Role)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, User: user}
	}
	refresh, err := deps.IssueRefresh(user.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, User: user}
	}
	if err := deps.StoreRefresh(ctx, user.ID, refresh); err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, User: user}
	}

	return LoginResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		Upgraded:     upgraded,
	}
}
