package flows

import "context"

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureLookup
	RefreshFailureUnknownUser
	RefreshFailureStatus
	RefreshFailureIssue
	RefreshFailureRotate
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       string
	User         User
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// VerifyRefresh returns the user id carried by a valid refresh token.
	VerifyRefresh func(token string) (string, error)
	LookupByID    func(ctx context.Context, userID string) (User, error)
	IsNotFound    func(error) bool
	IssueAccess   func(uid, email, role string) (string, error)
	IssueRefresh  func(uid string) (string, error)
	// RotateRefresh swaps presented for next atomically. Any error means the
	// presented token is not the current session.
	RotateRefresh func(ctx context.Context, uid, presented, next string) error
	RemoveRefresh func(ctx context.Context, uid string) error
	Warn          func(ctx context.Context, msg string, args ...any)
}

// RunRefresh verifies a refresh token, re-resolves its user and rotates the
// stored session. No tokens are returned unless the rotation succeeded.
func RunRefresh(ctx context.Context, token string, deps RefreshDeps) RefreshResult {
	if deps.Warn == nil {
		deps.Warn = func(context.Context, string, ...any) {}
	}

	uid, err := deps.VerifyRefresh(token)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	user, err := deps.LookupByID(ctx, uid)
	if err != nil {
		if deps.IsNotFound(err) {
			deps.remove(ctx, uid)
			return RefreshResult{Failure: RefreshFailureUnknownUser, Err: err, UserID: uid}
		}
		return RefreshResult{Failure: RefreshFailureLookup, Err: err, UserID: uid}
	}
	if user.ID != uid {
		// The directory resolved someone else; never sign for them.
		deps.remove(ctx, uid)
		return RefreshResult{Failure: RefreshFailureUnknownUser, UserID: uid}
	}
	if user.Status != StatusActive {
		deps.remove(ctx, uid)
		return RefreshResult{Failure: RefreshFailureStatus, UserID: uid, User: user}
	}

	access, err := deps.IssueAccess(user.ID, user.Email, user.Role)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: uid, User: user}
	}
	next, err := deps.IssueRefresh(user.ID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: uid, User: user}
	}

	if err := deps.RotateRefresh(ctx, uid, token, next); err != nil {
		return RefreshResult{Failure: RefreshFailureRotate, Err: err, UserID: uid, User: user}
	}

	return RefreshResult{
		UserID:       uid,
		User:         user,
		AccessToken:  access,
		RefreshToken: next,
	}
}

func (deps RefreshDeps) remove(ctx context.Context, uid string) {
	if err := deps.RemoveRefresh(ctx, uid); err != nil {
		deps.Warn(ctx, "refresh session not removed", "user_id", uid, "err", err)
	}
}
