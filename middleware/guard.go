package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/maxmusicschool/schoolauth"
)

// Validator verifies access tokens. *schoolauth.Engine implements it.
type Validator interface {
	Validate(ctx context.Context, accessToken string) (*schoolauth.Identity, error)
}

// Guard requires a valid "Authorization: Bearer <token>" header.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, http.StatusUnauthorized, CodeAuthenticationRequired, "Authentication required")
				return
			}

			id, err := v.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, schoolauth.ErrEngineNotReady) {
					WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "Service unavailable")
					return
				}
				WriteError(w, http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired token")
				return
			}

			ctx := schoolauth.WithIdentity(r.Context(), *id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits identities whose role is in roles. It must run after
// Guard.
func RequireRole(roles ...schoolauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := schoolauth.IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, CodeAuthenticationRequired, "Authentication required")
				return
			}
			if !slices.Contains(roles, id.Role) {
				WriteError(w, http.StatusForbidden, CodeInsufficientPermissions, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the credentials of a Bearer authorization header. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
