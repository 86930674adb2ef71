package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/cache"
	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/maxmusicschool/schoolauth/records"
	"github.com/maxmusicschool/schoolauth/school"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type harness struct {
	handler http.Handler
	engine  *schoolauth.Engine
	store   *records.MemoryStore
	mr      *miniredis.Miniredis
}

func newHarness(t *testing.T, tweak func(*schoolauth.Config), checks ...Check) *harness {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := records.NewMemoryStore()
	_, err := store.CreateTeacher(ctx, records.Teacher{
		ID: "t1", Name: "Asha", Email: "asha@school.test", PasswordHash: "teachpw",
		Subject: "Guitar", Status: records.StatusActive,
	})
	require.NoError(t, err)
	for _, s := range []records.Student{
		{ID: "s1", Name: "Mia", Email: "mia@school.test", Status: records.StatusActive},
		{ID: "s2", Name: "Leo", Email: "leo@school.test", Status: records.StatusHold, UpcomingAmount: 1500},
	} {
		s.Contact = "555-0100"
		s.BatchName = "Guitar A"
		s.PasswordHash = "pw"
		s.ClassDays = "Mon-Wed-Fri"
		s.TimeFrom, s.TimeTill = "17:00", "18:00"
		s.Subject, s.Course, s.Mode = "Guitar", "Beginner", records.ModeOffline
		s.StartDate, s.EndDate = "2025-01-01", "2099-12-31"
		s.Classes, s.UpcomingClasses, s.AttendancePercentage = 10, 20, 80
		s.Teacher = "Asha"
		_, err := store.CreateStudent(ctx, s)
		require.NoError(t, err)
	}

	cfg := schoolauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("http-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("http-refresh-secret-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.AllowLegacyPlaintext = true
	cfg.Password.UpgradeOnLogin = false
	cfg.Cache.PingInterval = time.Minute
	cfg.RateLimit.AuthMax = 100
	if tweak != nil {
		tweak(&cfg)
	}

	transport := cache.NewRedisTransport(rdb, cache.RedisOptions{PingInterval: time.Minute})
	caches := school.NewCaches(transport, school.CacheOptions{})
	engine, err := schoolauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCache(transport).
		WithDirectory(school.NewDirectory(store, caches)).
		Build()
	require.NoError(t, err)
	require.NoError(t, engine.Initialize(ctx))
	t.Cleanup(engine.Close)

	svc, err := school.NewService(school.Deps{
		Store:    store,
		Caches:   caches,
		Sessions: engine,
		Hasher:   engine,
	})
	require.NoError(t, err)

	handler := NewRouter(Deps{
		Auth:    engine,
		School:  svc,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok\n")) }),
		Checks:  checks,
	})
	return &harness{handler: handler, engine: engine, store: store, mr: mr}
}

func (h *harness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T, email, pw string, role schoolauth.Role) schoolauth.LoginResult {
	t.Helper()
	body, err := json.Marshal(schoolauth.LoginRequest{Email: email, Password: pw, Role: role})
	require.NoError(t, err)
	rec := h.do(t, http.MethodPost, "/api/auth/login", "", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res schoolauth.LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	require.Equal(t, code, body["error"])
	require.NotEmpty(t, body["message"])
	return body
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t, nil, Check{Name: "store", Run: func(context.Context) error { return nil }})

	rec := h.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = h.do(t, http.MethodGet, "/ready", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["ready"])
	require.Equal(t, map[string]any{"engine": "ok", "store": "ok"}, body["checks"])

	rec = h.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReportsFailingCheck(t *testing.T) {
	h := newHarness(t, nil, Check{Name: "redis", Run: func(context.Context) error { return errors.New("dial tcp: refused") }})

	rec := h.do(t, http.MethodGet, "/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["ready"])
	require.NotContains(t, rec.Body.String(), "refused")
}

func TestLoginAndStudentRoutes(t *testing.T) {
	h := newHarness(t, nil)
	res := h.login(t, "mia@school.test", "pw", schoolauth.RoleStudent)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, "s1", res.User.ID)
	require.Equal(t, schoolauth.RoleStudent, res.User.Role)

	for _, path := range []string{
		"/api/student/dashboard",
		"/api/student/profile",
		"/api/student/schedule",
		"/api/student/attendance?month=1&year=2025",
		"/api/student/payment-info",
		"/api/student/upcoming-classes",
		"/api/auth/me",
	} {
		rec := h.do(t, http.MethodGet, path, res.AccessToken, "")
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", path, rec.Body.String())
	}

	rec := h.do(t, http.MethodPut, "/api/student/profile", res.AccessToken, `{"contact":"555-0199"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decodeBody(t, rec)["profile"].(map[string]any)
	require.Equal(t, "555-0199", profile["contact"])
	require.NotContains(t, rec.Body.String(), "passwordHash")

	rec = h.do(t, http.MethodPost, "/api/student/rate-class", res.AccessToken, `{"date":"2025-01-10","rating":9}`)
	body := requireError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
	require.Contains(t, body["message"], "between 1 and 5")
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"mia@school.test","password":"nope","role":"student"}`)
	requireError(t, rec, http.StatusUnauthorized, CodeInvalidCredentials)

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"mia@school.test","password":"pw","role":"janitor"}`)
	requireError(t, rec, http.StatusBadRequest, CodeInvalidRole)

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"leo@school.test","password":"pw","role":"student"}`)
	body := requireError(t, rec, http.StatusForbidden, CodeAccountOnHold)
	require.Equal(t, 1500.0, body["pendingAmount"])
	require.Contains(t, body["message"], "1500")

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"mia@school.test"}`)
	requireError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
}

func TestRequestDecoding(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"mia@school.test","password":"pw","role":"student","admin":true}`)
	requireError(t, rec, http.StatusBadRequest, CodeInvalidRequest)

	rec = h.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"a"} {"email":"b"}`)
	requireError(t, rec, http.StatusBadRequest, CodeInvalidRequest)

	big := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec = h.do(t, http.MethodPost, "/api/auth/login", "", big)
	body := requireError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
	require.Contains(t, body["message"], "1MB")

	rec = h.do(t, http.MethodPost, "/api/auth/refresh", "", "")
	requireError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
}

func TestGateAndRoles(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/student/dashboard", "", "")
	requireError(t, rec, http.StatusUnauthorized, "authentication_required")

	rec = h.do(t, http.MethodGet, "/api/student/dashboard", "not-a-jwt", "")
	requireError(t, rec, http.StatusUnauthorized, "invalid_token")

	student := h.login(t, "mia@school.test", "pw", schoolauth.RoleStudent)
	rec = h.do(t, http.MethodGet, "/api/teacher/dashboard", student.AccessToken, "")
	requireError(t, rec, http.StatusForbidden, "insufficient_permissions")

	teacher := h.login(t, "asha@school.test", "teachpw", schoolauth.RoleTeacher)
	rec = h.do(t, http.MethodGet, "/api/student/profile", teacher.AccessToken, "")
	requireError(t, rec, http.StatusForbidden, "insufficient_permissions")

	rec = h.do(t, http.MethodGet, "/api/nowhere", "", "")
	requireError(t, rec, http.StatusNotFound, CodeNotFound)
}

func TestRefreshAndLogout(t *testing.T) {
	h := newHarness(t, nil)
	res := h.login(t, "mia@school.test", "pw", schoolauth.RoleStudent)

	rec := h.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+res.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair schoolauth.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	require.NotEqual(t, res.RefreshToken, pair.RefreshToken)

	rec = h.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+res.RefreshToken+`"}`)
	requireError(t, rec, http.StatusUnauthorized, "invalid_token")

	rec = h.do(t, http.MethodPost, "/api/auth/logout", pair.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Logged out successfully", decodeBody(t, rec)["message"])

	rec = h.do(t, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+pair.RefreshToken+`"}`)
	requireError(t, rec, http.StatusUnauthorized, "invalid_token")

	rec = h.do(t, http.MethodPost, "/api/auth/logout", pair.AccessToken, `{"userId":"t1"}`)
	requireError(t, rec, http.StatusForbidden, "insufficient_permissions")
}

func TestChangeRequestApproval(t *testing.T) {
	h := newHarness(t, nil)
	student := h.login(t, "mia@school.test", "pw", schoolauth.RoleStudent)
	teacher := h.login(t, "asha@school.test", "teachpw", schoolauth.RoleTeacher)

	rec := h.do(t, http.MethodPost, "/api/student/request-change", student.AccessToken,
		`{"newBatchName":"Guitar B","newTiming":{"from":"18:00","till":"19:00"},"newDays":"Tue-Thu","reason":"school timings"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requestID, _ := decodeBody(t, rec)["requestId"].(string)
	require.NotEmpty(t, requestID)

	rec = h.do(t, http.MethodGet, "/api/teacher/requests", teacher.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decodeBody(t, rec)["requests"], 1)

	rec = h.do(t, http.MethodPost, "/api/teacher/requests/"+requestID+"/approve", teacher.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/teacher/requests/"+requestID+"/reject", teacher.AccessToken, `{"reason":"late"}`)
	requireError(t, rec, http.StatusConflict, CodeRequestResolved)

	rec = h.do(t, http.MethodGet, "/api/student/schedule", student.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Guitar B", decodeBody(t, rec)["batchName"])

	rec = h.do(t, http.MethodPost, "/api/teacher/requests/missing/approve", teacher.AccessToken, "")
	requireError(t, rec, http.StatusNotFound, CodeNotFound)
}

func TestTeacherRoutes(t *testing.T) {
	h := newHarness(t, nil)
	teacher := h.login(t, "asha@school.test", "teachpw", schoolauth.RoleTeacher)

	for _, path := range []string{
		"/api/teacher/dashboard",
		"/api/teacher/batches",
		"/api/teacher/batches/Guitar%20A/students",
		"/api/teacher/attendance/history?batchName=Guitar%20A",
		"/api/teacher/statistics",
	} {
		rec := h.do(t, http.MethodGet, path, teacher.AccessToken, "")
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", path, rec.Body.String())
	}

	rec := h.do(t, http.MethodPost, "/api/teacher/attendance", teacher.AccessToken,
		`{"batchName":"Guitar A","date":"2025-01-13","students":[{"studentId":"s1","name":"Mia","status":"present"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/teacher/students", teacher.AccessToken, `{
		"name":"Ana","contact":"555-0111","email":"mia@school.test","batchName":"Guitar A","password":"secret",
		"classDays":"Mon-Wed","timeFrom":"17:00","timeTill":"18:00","subject":"Guitar","course":"Beginner",
		"mode":"Offline","startDate":"2025-02-01","endDate":"2025-04-01","paidAmount":1000}`)
	requireError(t, rec, http.StatusConflict, CodeConflict)

	rec = h.do(t, http.MethodPut, "/api/teacher/students/s1", teacher.AccessToken, `{"status":"Hold"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/teacher/attendance/history?batchName=Guitar%20A&month=13", teacher.AccessToken, "")
	requireError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
}

func TestAuthRateLimit(t *testing.T) {
	h := newHarness(t, func(c *schoolauth.Config) {
		c.RateLimit.AuthMax = 2
		c.RateLimit.AuthWindow = time.Minute
	})

	body := `{"email":"mia@school.test","password":"nope","role":"student"}`
	for range 2 {
		rec := h.do(t, http.MethodPost, "/api/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := h.do(t, http.MethodPost, "/api/auth/login", "", body)
	requireError(t, rec, http.StatusTooManyRequests, "rate_limited")
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestUnexpectedErrorsAreNotLeaked(t *testing.T) {
	var logs bytes.Buffer
	a := &api{logger: logging.New(&logs, "development", "debug")}

	rec := httptest.NewRecorder()
	a.fail(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("pq: relation students does not exist"))

	requireError(t, rec, http.StatusInternalServerError, "internal_error")
	require.NotContains(t, rec.Body.String(), "relation")
	require.Contains(t, logs.String(), "relation students does not exist")
}

func TestErrorTableUsesUserMessages(t *testing.T) {
	a := &api{logger: logging.Nop()}
	rec := httptest.NewRecorder()
	a.fail(rec, httptest.NewRequest(http.MethodGet, "/x", nil), badRequest("month must be 1-12"))

	body := requireError(t, rec, http.StatusBadRequest, CodeInvalidRequest)
	require.Equal(t, "Month must be 1-12", body["message"])
}
