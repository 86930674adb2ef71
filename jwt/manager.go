package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for every verification failure. Expired,
// forged, malformed and wrong-type tokens are deliberately indistinguishable.
var ErrInvalidToken = errors.New("invalid token")

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Config defines a public type used by schoolauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	// AllowedRoles restricts the role claim of access tokens. Empty means any
	// non-empty role is accepted.
	AllowedRoles []string
}

// Manager issues and verifies access and refresh tokens. Each token kind is
// signed with its own HS256 secret.
type Manager struct {
	config Config
	roles  map[string]struct{}
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token.
type RefreshClaims struct {
	UID  string `json:"uid"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("hs256 requires access secret")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("hs256 requires refresh secret")
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, errors.New("access and refresh secrets must differ")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	m := &Manager{config: cfg}
	if len(cfg.AllowedRoles) > 0 {
		m.roles = make(map[string]struct{}, len(cfg.AllowedRoles))
		for _, role := range cfg.AllowedRoles {
			role = strings.TrimSpace(role)
			if role == "" {
				return nil, errors.New("allowed roles contain an empty role")
			}
			m.roles[role] = struct{}{}
		}
	}

	return m, nil
}

// AccessTTL reports the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// RefreshTTL reports the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration {
	return j.config.RefreshTTL
}

// IssueAccess signs an access token for the given identity.
//
// IssueAccess has no side effects beyond the cryptographic computation.
func (j *Manager) IssueAccess(uid, email, role string) (string, error) {
	if uid == "" || role == "" {
		return "", errors.New("access token requires uid and role")
	}
	if !j.roleAllowed(role) {
		return "", fmt.Errorf("role %q is not allowed", role)
	}

	now := time.Now()
	claims := AccessClaims{
		UID:              uid,
		Email:            email,
		Role:             role,
		Type:             tokenTypeAccess,
		RegisteredClaims: j.registered(now, j.config.AccessTTL),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.config.AccessSecret)
}

// IssueRefresh signs a refresh token carrying only the user id. Every call
// yields a distinct token, even within the same second.
func (j *Manager) IssueRefresh(uid string) (string, error) {
	if uid == "" {
		return "", errors.New("refresh token requires uid")
	}

	now := time.Now()
	claims := RefreshClaims{
		UID:              uid,
		Type:             tokenTypeRefresh,
		RegisteredClaims: j.registered(now, j.config.RefreshTTL),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.config.RefreshSecret)
}

// VerifyAccess describes the verifyaccess operation and its observable behavior.
//
// VerifyAccess returns ErrInvalidToken for any signature, expiry, issuer, or claim-shape failure.
// VerifyAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, j.config.AccessSecret); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != tokenTypeAccess || claims.UID == "" || claims.Role == "" {
		return nil, ErrInvalidToken
	}
	if !j.roleAllowed(claims.Role) {
		return nil, ErrInvalidToken
	}
	if !j.iatAcceptable(claims.IssuedAt) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyRefresh describes the verifyrefresh operation and its observable behavior.
//
// VerifyRefresh returns ErrInvalidToken for any signature, expiry, issuer, or claim-shape failure.
// VerifyRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, j.config.RefreshSecret); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != tokenTypeRefresh || claims.UID == "" {
		return nil, ErrInvalidToken
	}
	if !j.iatAcceptable(claims.IssuedAt) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (j *Manager) registered(now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    j.config.Issuer,
	}
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims, key []byte) error {
	if tokenStr == "" {
		return ErrInvalidToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return key, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}

	return nil
}

func (j *Manager) iatAcceptable(iat *jwt.NumericDate) bool {
	if iat == nil {
		return false
	}
	return !iat.Time.After(time.Now().Add(j.config.MaxFutureIAT))
}

func (j *Manager) roleAllowed(role string) bool {
	if j.roles == nil {
		return true
	}
	_, ok := j.roles[role]
	return ok
}
