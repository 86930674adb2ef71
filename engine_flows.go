package schoolauth

import (
	"context"
	"errors"

	"github.com/maxmusicschool/schoolauth/internal/flows"
	"github.com/maxmusicschool/schoolauth/jwt"
)

func (e *Engine) buildFlows() flows.Service {
	warn := func(ctx context.Context, msg string, args ...any) {
		e.logger.Warn(ctx, msg, args...)
	}
	isNotFound := func(err error) bool {
		return errors.Is(err, ErrUserNotFound)
	}

	login := flows.LoginDeps{
		LookupByEmail: func(ctx context.Context, role, email string) (flows.User, error) {
			u, err := e.directory.LookupByEmail(ctx, Role(role), email)
			return toFlowUser(u), err
		},
		IsNotFound:     isNotFound,
		VerifyPassword: e.passwords.Verify,
		VerifyDummy:    e.passwords.VerifyDummy,
		NeedsRehash:    e.passwords.NeedsRehash,
		HashPassword:   e.passwords.Hash,
		IssueAccess:    e.jwt.IssueAccess,
		IssueRefresh:   e.jwt.IssueRefresh,
		StoreRefresh:   e.sessions.StoreRefreshToken,
		Warn:           warn,
	}
	if e.upgrader != nil {
		login.UpgradeHash = func(ctx context.Context, userID, role, hash string) error {
			return e.upgrader.UpgradePasswordHash(ctx, userID, Role(role), hash)
		}
	}

	return flows.New(flows.Deps{
		Login: login,
		Refresh: flows.RefreshDeps{
			VerifyRefresh: func(token string) (string, error) {
				claims, err := e.jwt.VerifyRefresh(token)
				if err != nil {
					return "", err
				}
				return claims.UID, nil
			},
			LookupByID: func(ctx context.Context, id string) (flows.User, error) {
				u, err := e.directory.LookupByID(ctx, id)
				return toFlowUser(u), err
			},
			IsNotFound:    isNotFound,
			IssueAccess:   e.jwt.IssueAccess,
			IssueRefresh:  e.jwt.IssueRefresh,
			RotateRefresh: e.sessions.RotateRefreshToken,
			RemoveRefresh: e.sessions.RemoveRefreshToken,
			Warn:          warn,
		},
		Logout: flows.LogoutDeps{
			RemoveRefresh: e.sessions.RemoveRefreshToken,
			MayLogoutOthers: func(role string) bool {
				return Role(role) == RoleAdmin
			},
		},
		Validate: flows.ValidateDeps{
			ParseAccess: func(token string) (*jwt.AccessClaims, error) {
				return e.jwt.VerifyAccess(token)
			},
			ValidRole: func(role string) bool {
				return Role(role).Valid()
			},
		},
	})
}

func toFlowUser(u User) flows.User {
	status := flows.StatusInactive
	switch u.Status {
	case AccountActive:
		status = flows.StatusActive
	case AccountOnHold:
		status = flows.StatusHold
	}
	return flows.User{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          string(u.Role),
		PasswordHash:  u.PasswordHash,
		Status:        status,
		PendingAmount: u.PendingAmount,
	}
}

func fromFlowUser(u flows.User) User {
	status := AccountInactive
	switch u.Status {
	case flows.StatusActive:
		status = AccountActive
	case flows.StatusHold:
		status = AccountOnHold
	}
	return User{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          Role(u.Role),
		Status:        status,
		PendingAmount: u.PendingAmount,
	}
}
