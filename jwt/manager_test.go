package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("access-secret-access-secret-0001"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-01"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "schoolauth",
		AllowedRoles:  []string{"student", "teacher", "admin"},
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testConfig())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func signAccess(t *testing.T, secret []byte, claims AccessClaims) string {
	t.Helper()
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAccessRoundTrip(t *testing.T) {
	m := newTestManager(t)

	cases := []struct{ uid, email, role string }{
		{"s-1", "a@b.com", "student"},
		{"t-1", "teacher@school.test", "teacher"},
		{"t-2", "admin@school.test", "admin"},
	}
	for _, tc := range cases {
		token, err := m.IssueAccess(tc.uid, tc.email, tc.role)
		if err != nil {
			t.Fatalf("issue access %s: %v", tc.uid, err)
		}
		claims, err := m.VerifyAccess(token)
		if err != nil {
			t.Fatalf("verify access %s: %v", tc.uid, err)
		}
		if claims.UID != tc.uid || claims.Email != tc.email || claims.Role != tc.role {
			t.Fatalf("claims changed in round trip: %+v", claims)
		}
		if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 15*time.Minute {
			t.Fatalf("expected 15m lifetime, got %s", got)
		}
	}
}

func TestRefreshRoundTripAndUniqueness(t *testing.T) {
	m := newTestManager(t)

	first, err := m.IssueRefresh("s-1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	second, err := m.IssueRefresh("s-1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if first == second {
		t.Fatal("expected consecutive refresh tokens to differ")
	}

	claims, err := m.VerifyRefresh(first)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if claims.UID != "s-1" {
		t.Fatalf("unexpected uid %q", claims.UID)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 7*24*time.Hour {
		t.Fatalf("expected 7d lifetime, got %s", got)
	}
}

func TestSecretsAreIndependent(t *testing.T) {
	m := newTestManager(t)

	access, _ := m.IssueAccess("s-1", "a@b.com", "student")
	refresh, _ := m.IssueRefresh("s-1")

	if _, err := m.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := m.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestTypeClaimCheckedEvenWithSharedKeyMaterial(t *testing.T) {
	m := newTestManager(t)
	cfg := testConfig()

	// A refresh-shaped payload signed with the access secret must still fail.
	forged := signAccess(t, cfg.AccessSecret, AccessClaims{
		UID:  "s-1",
		Role: "student",
		Type: tokenTypeRefresh,
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	if _, err := m.VerifyAccess(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong typ to fail, got %v", err)
	}
}

func TestVerifyFailuresAreUniform(t *testing.T) {
	m := newTestManager(t)
	cfg := testConfig()
	now := time.Now()

	valid := func() AccessClaims {
		return AccessClaims{
			UID:  "s-1",
			Role: "student",
			Type: tokenTypeAccess,
			RegisteredClaims: gjwt.RegisteredClaims{
				Issuer:    cfg.Issuer,
				IssuedAt:  gjwt.NewNumericDate(now),
				ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
	}

	expired := valid()
	expired.IssuedAt = gjwt.NewNumericDate(now.Add(-time.Hour))
	expired.ExpiresAt = gjwt.NewNumericDate(now.Add(-time.Minute))

	wrongIssuer := valid()
	wrongIssuer.Issuer = "elsewhere"

	unknownRole := valid()
	unknownRole.Role = "parent"

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	futureIAT := valid()
	futureIAT.IssuedAt = gjwt.NewNumericDate(now.Add(time.Hour))
	futureIAT.ExpiresAt = gjwt.NewNumericDate(now.Add(2 * time.Hour))

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, valid()).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tokens := map[string]string{
		"wrong secret":  signAccess(t, []byte("some-other-secret-some-other-sec"), valid()),
		"expired":       signAccess(t, cfg.AccessSecret, expired),
		"wrong issuer":  signAccess(t, cfg.AccessSecret, wrongIssuer),
		"unknown role":  signAccess(t, cfg.AccessSecret, unknownRole),
		"no expiry":     signAccess(t, cfg.AccessSecret, noExpiry),
		"future iat":    signAccess(t, cfg.AccessSecret, futureIAT),
		"alg none":      none,
		"garbage":       "not.a.jwt",
		"empty":         "",
		"truncated sig": signAccess(t, cfg.AccessSecret, valid())[:40],
	}

	for name, token := range tokens {
		claims, err := m.VerifyAccess(token)
		if err != ErrInvalidToken {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
		if claims != nil {
			t.Fatalf("%s: expected nil claims", name)
		}
	}
}

func TestExpiredRefreshRejected(t *testing.T) {
	m := newTestManager(t)
	cfg := testConfig()

	claims := RefreshClaims{
		UID:  "s-1",
		Type: tokenTypeRefresh,
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-8 * 24 * time.Hour)),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-24 * time.Hour)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(cfg.RefreshSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.VerifyRefresh(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	base := testConfig()

	mutations := map[string]func(*Config){
		"missing access secret":  func(c *Config) { c.AccessSecret = nil },
		"missing refresh secret": func(c *Config) { c.RefreshSecret = nil },
		"shared secret":          func(c *Config) { c.RefreshSecret = c.AccessSecret },
		"zero access ttl":        func(c *Config) { c.AccessTTL = 0 },
		"refresh shorter":        func(c *Config) { c.RefreshTTL = time.Minute },
		"leeway too large":       func(c *Config) { c.Leeway = time.Hour },
		"empty role":             func(c *Config) { c.AllowedRoles = []string{"student", " "} },
	}
	for name, mutate := range mutations {
		cfg := base
		mutate(&cfg)
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}

func TestIssueAccessRejectsUnknownRole(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.IssueAccess("s-1", "a@b.com", "parent"); err == nil {
		t.Fatal("expected unknown role to be rejected at issue time")
	}
}
