package flows

import (
	"context"

	"github.com/maxmusicschool/schoolauth/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureUnauthorized
	ValidateFailureRole
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// ValidateDeps captures stateless validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	ValidRole   func(string) bool
}

// RunValidate verifies an access token. No session state is consulted.
func RunValidate(_ context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureUnauthorized, Err: err}
	}
	if deps.ValidRole != nil && !deps.ValidRole(claims.Role) {
		return ValidateResult{Failure: ValidateFailureRole}
	}
	return ValidateResult{Claims: claims}
}
