package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/maxmusicschool/schoolauth"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	identities map[string]schoolauth.Identity
	err        error
}

func (f fakeValidator) Validate(_ context.Context, token string) (*schoolauth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.identities[token]
	if !ok {
		return nil, schoolauth.ErrInvalidToken
	}
	return &id, nil
}

type fakeRate struct {
	limit   int
	counts  map[string]int
	lastIP  string
	retryIn time.Duration
}

func (f *fakeRate) CheckRate(_ context.Context, policy, ip string) (schoolauth.RateDecision, error) {
	f.lastIP = ip
	f.counts[policy+ip]++
	n := f.counts[policy+ip]
	d := schoolauth.RateDecision{Limit: f.limit, Count: n, Remaining: max(f.limit-n, 0), Allowed: n <= f.limit}
	if !d.Allowed {
		d.RetryAfter = f.retryIn
		return d, schoolauth.ErrRateLimited
	}
	return d, nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestGuard(t *testing.T) {
	v := fakeValidator{identities: map[string]schoolauth.Identity{
		"good": {UserID: "s1", Role: schoolauth.RoleStudent},
	}}
	var seen schoolauth.Identity
	h := Guard(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = schoolauth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, CodeAuthenticationRequired},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, CodeAuthenticationRequired},
		{"empty token", "Bearer ", http.StatusUnauthorized, CodeAuthenticationRequired},
		{"bad token", "Bearer nope", http.StatusUnauthorized, CodeInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.code, decodeError(t, rec).Error)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "s1", seen.UserID)
}

func TestGuardInvalidTokenMessage(t *testing.T) {
	h := Guard(fakeValidator{})(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, ErrorBody{Error: "invalid_token", Message: "Invalid or expired token"}, decodeError(t, rec))
}

func TestGuardEngineNotReady(t *testing.T) {
	h := Guard(fakeValidator{err: schoolauth.ErrEngineNotReady})(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(schoolauth.RoleTeacher, schoolauth.RoleAdmin)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	for role, want := range map[schoolauth.Role]int{
		schoolauth.RoleStudent: http.StatusForbidden,
		schoolauth.RoleTeacher: http.StatusNoContent,
		schoolauth.RoleAdmin:   http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(schoolauth.WithIdentity(req.Context(), schoolauth.Identity{UserID: "u", Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "role %s", role)
		if want == http.StatusForbidden {
			require.Equal(t, ErrorBody{Error: "insufficient_permissions", Message: "Insufficient permissions"}, decodeError(t, rec))
		}
	}
}

func TestRateLimitHeaders(t *testing.T) {
	rc := &fakeRate{limit: 2, counts: map[string]int{}, retryIn: 1500 * time.Millisecond}
	h := Chain(okHandler, ClientIP(nil), RateLimit(rc, "auth", nil))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	require.Equal(t, "192.0.2.10", rc.lastIP)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, ErrorBody{Error: "rate_limited", Message: "Too many requests, please try again later"}, decodeError(t, rec))
}

func TestClientIPTrustedProxies(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "127.0.0.1"})
	require.NoError(t, err)

	var got string
	h := ClientIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = schoolauth.ClientIPFromContext(r.Context())
	}))

	cases := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer ignores header", "203.0.113.5:1000", "198.51.100.1", "203.0.113.5"},
		{"trusted peer uses header", "10.1.2.3:1000", "198.51.100.1", "198.51.100.1"},
		{"skips trusted hops", "127.0.0.1:1000", "198.51.100.1, 10.9.9.9", "198.51.100.1"},
		{"spoofed left entry ignored", "10.1.2.3:1000", "1.1.1.1, 198.51.100.2", "198.51.100.2"},
		{"garbage falls back to peer", "10.1.2.3:1000", "not-an-ip", "10.1.2.3"},
		{"no header", "10.1.2.3:1000", "", "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			require.Equal(t, tc.want, got)
		})
	}

	_, err = ParseTrustedProxies([]string{"nope"})
	require.Error(t, err)
	ps, err := ParseTrustedProxies([]string{" ", "::1"})
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{netip.MustParsePrefix("::1/128")}, ps)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	require.NotEmpty(t, rec.Header().Get("Permissions-Policy"))
	require.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestLogger(nil), Recover(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "internal_error", body.Error)
	require.NotContains(t, rec.Body.String(), "boom")
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":    "abc",
		"bearer abc":    "abc",
		"  Bearer  abc ": "abc",
		"Bearer":        "",
		"Basic abc":     "",
		"Bearerabc":     "",
	}
	for header, want := range cases {
		got, ok := bearerToken(header)
		require.Equal(t, want, got, header)
		require.Equal(t, want != "", ok, header)
	}
}
