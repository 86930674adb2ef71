package httpapi

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"
	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/maxmusicschool/schoolauth/middleware"
	"github.com/maxmusicschool/schoolauth/school"
)

// Authenticator is the part of *schoolauth.Engine the router uses.
type Authenticator interface {
	middleware.Validator
	middleware.RateChecker
	Login(ctx context.Context, req schoolauth.LoginRequest) (*schoolauth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*schoolauth.TokenPair, error)
	Logout(ctx context.Context, caller schoolauth.Identity, userID string) error
	Ready() bool
}

// Check is one readiness probe. /ready fails if any probe errors.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

type Deps struct {
	Auth   Authenticator
	School *school.Service
	// Metrics serves /metrics. Nil leaves the route unmounted.
	Metrics        http.Handler
	Checks         []Check
	TrustedProxies []netip.Prefix
	Logger         schoolauth.Logger
	// CheckTimeout bounds each readiness probe. Default 2s.
	CheckTimeout time.Duration
}

type api struct {
	auth         Authenticator
	school       *school.Service
	checks       []Check
	checkTimeout time.Duration
	logger       schoolauth.Logger
}

// NewRouter builds the complete HTTP handler.
func NewRouter(d Deps) http.Handler {
	a := &api{
		auth:         d.Auth,
		school:       d.School,
		checks:       d.Checks,
		checkTimeout: d.CheckTimeout,
		logger:       logging.OrNop(d.Logger),
	}
	if a.checkTimeout <= 0 {
		a.checkTimeout = 2 * time.Second
	}

	r := mux.NewRouter()
	r.Use(
		middleware.Recover(a.logger),
		middleware.RequestLogger(a.logger),
		middleware.SecurityHeaders,
		middleware.ClientIP(d.TrustedProxies),
	)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, CodeNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "Method not allowed")
	})

	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.ready).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.RateLimit(a.auth, schoolauth.RatePolicyAPI, a.logger))

	guard := middleware.Guard(a.auth)
	authLimit := middleware.RateLimit(a.auth, schoolauth.RatePolicyAuth, a.logger)

	authRouter := apiRouter.PathPrefix("/auth").Subrouter()
	authRouter.Handle("/login", authLimit(http.HandlerFunc(a.login))).Methods(http.MethodPost)
	authRouter.Handle("/refresh", authLimit(http.HandlerFunc(a.refresh))).Methods(http.MethodPost)
	authRouter.Handle("/logout", guard(http.HandlerFunc(a.logout))).Methods(http.MethodPost)
	authRouter.Handle("/me", guard(http.HandlerFunc(a.me))).Methods(http.MethodGet)

	student := apiRouter.PathPrefix("/student").Subrouter()
	student.Use(guard, middleware.RequireRole(schoolauth.RoleStudent))
	student.HandleFunc("/dashboard", a.studentDashboard).Methods(http.MethodGet)
	student.HandleFunc("/profile", a.studentProfile).Methods(http.MethodGet)
	student.HandleFunc("/profile", a.updateStudentProfile).Methods(http.MethodPut)
	student.HandleFunc("/schedule", a.studentSchedule).Methods(http.MethodGet)
	student.HandleFunc("/attendance", a.studentAttendance).Methods(http.MethodGet)
	student.HandleFunc("/request-change", a.requestChange).Methods(http.MethodPost)
	student.HandleFunc("/payment-info", a.paymentInfo).Methods(http.MethodGet)
	student.HandleFunc("/rate-class", a.rateClass).Methods(http.MethodPost)
	student.HandleFunc("/upcoming-classes", a.upcomingClasses).Methods(http.MethodGet)

	teacher := apiRouter.PathPrefix("/teacher").Subrouter()
	teacher.Use(guard, middleware.RequireRole(schoolauth.RoleTeacher, schoolauth.RoleAdmin))
	teacher.HandleFunc("/dashboard", a.teacherDashboard).Methods(http.MethodGet)
	teacher.HandleFunc("/batches", a.batches).Methods(http.MethodGet)
	teacher.HandleFunc("/batches/{batchName}/students", a.batchStudents).Methods(http.MethodGet)
	teacher.HandleFunc("/students", a.addStudent).Methods(http.MethodPost)
	teacher.HandleFunc("/students/{id}", a.updateStudent).Methods(http.MethodPut)
	teacher.HandleFunc("/attendance", a.markAttendance).Methods(http.MethodPost)
	teacher.HandleFunc("/attendance/history", a.attendanceHistory).Methods(http.MethodGet)
	teacher.HandleFunc("/requests", a.requests).Methods(http.MethodGet)
	teacher.HandleFunc("/requests/{id}/approve", a.approveRequest).Methods(http.MethodPost)
	teacher.HandleFunc("/requests/{id}/reject", a.rejectRequest).Methods(http.MethodPost)
	teacher.HandleFunc("/statistics", a.statistics).Methods(http.MethodGet)

	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readiness struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

func (a *api) ready(w http.ResponseWriter, r *http.Request) {
	out := readiness{Ready: a.auth.Ready(), Checks: map[string]string{"engine": "ok"}}
	if !out.Ready {
		out.Checks["engine"] = "not initialized"
	}
	for _, c := range a.checks {
		ctx, cancel := context.WithTimeout(r.Context(), a.checkTimeout)
		err := c.Run(ctx)
		cancel()
		if err != nil {
			a.logger.Warn(r.Context(), "readiness check failed", "check", c.Name, "err", err)
			out.Ready = false
			out.Checks[c.Name] = "unavailable"
			continue
		}
		out.Checks[c.Name] = "ok"
	}

	status := http.StatusOK
	if !out.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}
