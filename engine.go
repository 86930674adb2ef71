package schoolauth

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	internalaudit "github.com/maxmusicschool/schoolauth/internal/audit"
	"github.com/maxmusicschool/schoolauth/internal/flows"
	"github.com/maxmusicschool/schoolauth/internal/limiters"
	"github.com/maxmusicschool/schoolauth/jwt"
	"github.com/maxmusicschool/schoolauth/password"
	"github.com/maxmusicschool/schoolauth/session"
)

// Engine issues and verifies sessions for students and teachers. Build it
// with New().…Build() and call Initialize before use.
type Engine struct {
	config    Config
	logger    Logger
	jwt       *jwt.Manager
	sessions  *session.Store
	limiter   *limiters.RequestLimiter
	passwords *password.Verifier
	transport CacheTransport
	directory Directory
	upgrader  PasswordUpgrader
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	flows     flows.Service
	now       func() time.Time

	ready atomic.Bool
}

// Initialize connects the cache transport, retrying per the Cache config.
// Every operation returns ErrEngineNotReady until it succeeds.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.ready.Load() {
		return nil
	}
	if err := e.transport.Initialize(ctx); err != nil {
		return fmt.Errorf("schoolauth: initialize: %w", err)
	}
	e.ready.Store(true)
	e.logger.Info(ctx, "engine ready")
	return nil
}

// Ready reports whether Initialize has succeeded and Close has not been
// called.
func (e *Engine) Ready() bool {
	return e != nil && e.ready.Load()
}

// Close stops the cache health monitor and drains the audit dispatcher.
// The Redis client is owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.ready.Store(false)
	if e.transport != nil {
		_ = e.transport.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates a student or teacher and starts a refresh session,
// replacing any previous one.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if !e.Ready() {
		return nil, ErrEngineNotReady
	}
	if req.Role != RoleStudent && req.Role != RoleTeacher {
		return nil, ErrInvalidRole
	}

	res := e.flows.Login(ctx, string(req.Role), req.Email, req.Password)
	user := fromFlowUser(res.User)

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureUnknownUser, flows.LoginFailurePassword:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, req.Role, ErrInvalidCredentials, func() map[string]string {
			reason := "bad_password"
			if res.Failure == flows.LoginFailureUnknownUser {
				reason = "unknown_user"
			}
			return map[string]string{"reason": reason}
		})
		return nil, ErrInvalidCredentials
	case flows.LoginFailureInactive:
		e.metricInc(MetricLoginInactive)
		e.emitAudit(ctx, auditEventLoginInactive, false, user.ID, user.Role, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	case flows.LoginFailureHold:
		err := &AccountHoldError{PendingAmount: user.PendingAmount}
		e.metricInc(MetricLoginInactive)
		e.emitAudit(ctx, auditEventLoginInactive, false, user.ID, user.Role, err, nil)
		return nil, err
	case flows.LoginFailureLookup, flows.LoginFailureSession:
		e.metricInc(MetricLoginFailure)
		e.logger.Error(ctx, "login backend failure", "err", res.Err)
		err := fmt.Errorf("%w: %v", ErrUpstreamUnavailable, res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, req.Role, err, nil)
		return nil, err
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error(ctx, "login token issue failed", "err", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, req.Role, res.Err, nil)
		return nil, fmt.Errorf("schoolauth: login: %w", res.Err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.Role, nil, func() map[string]string {
		if !res.Upgraded {
			return nil
		}
		return map[string]string{"password_upgraded": "true"}
	})

	return &LoginResult{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User: UserInfo{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Role:  user.Role,
		},
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed; replaying it fails with ErrInvalidToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.Ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	role := Role(res.User.Role)

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureLookup:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error(ctx, "refresh lookup failed", "user_id", res.UserID, "err", res.Err)
		err := fmt.Errorf("%w: %v", ErrUpstreamUnavailable, res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, role, err, nil)
		return nil, err
	case flows.RefreshFailureIssue:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error(ctx, "refresh token issue failed", "user_id", res.UserID, "err", res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, role, res.Err, nil)
		return nil, fmt.Errorf("schoolauth: refresh: %w", res.Err)
	default:
		if res.Failure == flows.RefreshFailureStatus || res.Failure == flows.RefreshFailureUnknownUser {
			e.metricInc(MetricSessionRevoked)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, role, ErrInvalidToken, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(res.Failure)}
		})
		return nil, ErrInvalidToken
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, role, nil, nil)

	return &TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

func refreshFailureReason(kind flows.RefreshFailureKind) string {
	switch kind {
	case flows.RefreshFailureDecode:
		return "decode_failed"
	case flows.RefreshFailureUnknownUser:
		return "unknown_user"
	case flows.RefreshFailureStatus:
		return "account_status"
	case flows.RefreshFailureRotate:
		return "session_mismatch"
	default:
		return "unknown"
	}
}

// Logout ends the refresh session of userID, which defaults to the caller.
// Only admins may log out other users.
func (e *Engine) Logout(ctx context.Context, caller Identity, userID string) error {
	if !e.Ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, caller.UserID, string(caller.Role), userID)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureForbidden:
		e.metricInc(MetricAuthorizeDenied)
		e.emitAudit(ctx, auditEventLogout, false, caller.UserID, caller.Role, ErrInsufficientPermissions, func() map[string]string {
			return map[string]string{"target": res.UserID}
		})
		return ErrInsufficientPermissions
	default:
		err := fmt.Errorf("%w: %v", ErrUpstreamUnavailable, res.Err)
		e.emitAudit(ctx, auditEventLogout, false, caller.UserID, caller.Role, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, caller.UserID, caller.Role, nil, func() map[string]string {
		if res.UserID == caller.UserID {
			return nil
		}
		return map[string]string{"target": res.UserID}
	})
	return nil
}

// Validate verifies an access token without touching Redis.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Identity, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}
	if !e.Ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Validate(ctx, accessToken)
	if res.Failure != flows.ValidateFailureNone {
		e.metricInc(MetricValidateFailure)
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID: res.Claims.UID,
		Email:  res.Claims.Email,
		Role:   Role(res.Claims.Role),
	}, nil
}

// Authorize returns ErrInsufficientPermissions unless id's role is one of
// allowed.
func (e *Engine) Authorize(id Identity, allowed ...Role) error {
	for _, r := range allowed {
		if id.Role == r {
			return nil
		}
	}
	e.metricInc(MetricAuthorizeDenied)
	return ErrInsufficientPermissions
}

// RevokeSessions removes the refresh session of userID. Access tokens
// already issued stay valid until they expire.
func (e *Engine) RevokeSessions(ctx context.Context, userID string) error {
	if !e.Ready() {
		return ErrEngineNotReady
	}
	if err := e.sessions.RemoveRefreshToken(ctx, userID); err != nil {
		e.logger.Warn(ctx, "session revoke failed", "user_id", userID, "err", err)
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, "", nil, nil)
	return nil
}

// CheckRate counts one request from clientIP under the named policy
// ("auth" or "api"). A spent budget returns the decision and
// ErrRateLimited.
func (e *Engine) CheckRate(ctx context.Context, policy, clientIP string) (RateDecision, error) {
	d, err := e.limiter.Check(ctx, policy, clientIP)
	if err != nil {
		return d, err
	}
	if d.Allowed {
		return d, nil
	}

	if policy == limiters.PolicyAuth {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, nil)
	}
	e.emitRateLimit(ctx, policy, d)
	return d, ErrRateLimited
}

// HashPassword hashes a new password with the configured argon2id policy.
func (e *Engine) HashPassword(pw string) (string, error) {
	return e.passwords.Hash(pw)
}

// Ping reports the session store round trip.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	return e.sessions.Ping(ctx)
}

// CacheHealthy reports the last known cache transport state.
func (e *Engine) CacheHealthy() bool {
	return e.transport != nil && e.transport.Healthy()
}
