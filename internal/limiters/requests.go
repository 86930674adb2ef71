package limiters

import (
	"context"
	"strings"
	"time"

	"github.com/maxmusicschool/schoolauth/internal/rate"
)

const (
	PolicyAuth = "auth"
	PolicyAPI  = "api"
)

// RequestConfig sets the budgets of the request policies.
type RequestConfig struct {
	AuthMax    int
	AuthWindow time.Duration
	APIMax     int
	APIWindow  time.Duration
}

// DefaultRequestConfig returns 5/15m for auth and 100/15m for api.
func DefaultRequestConfig() RequestConfig {
	return RequestConfig{
		AuthMax:    5,
		AuthWindow: 15 * time.Minute,
		APIMax:     100,
		APIWindow:  15 * time.Minute,
	}
}

// RequestLimiter applies the named policies to client addresses.
type RequestLimiter struct {
	limiter  *rate.Limiter
	policies map[string]rate.Policy
}

func NewRequestLimiter(limiter *rate.Limiter, cfg RequestConfig) *RequestLimiter {
	return &RequestLimiter{
		limiter: limiter,
		policies: map[string]rate.Policy{
			PolicyAuth: {Name: PolicyAuth, Limit: cfg.AuthMax, Window: cfg.AuthWindow},
			PolicyAPI:  {Name: PolicyAPI, Limit: cfg.APIMax, Window: cfg.APIWindow},
		},
	}
}

// Policy returns the named policy and whether it exists.
func (l *RequestLimiter) Policy(name string) (rate.Policy, bool) {
	p, ok := l.policies[name]
	return p, ok
}

// Check counts one request from clientIP under the named policy.
func (l *RequestLimiter) Check(ctx context.Context, policy, clientIP string) (rate.Decision, error) {
	if l == nil {
		return rate.Decision{Allowed: true}, nil
	}
	p, ok := l.policies[policy]
	if !ok {
		return rate.Decision{}, rate.ErrInvalidPolicy
	}
	return l.limiter.Allow(ctx, p, subjectKey(clientIP))
}

func subjectKey(clientIP string) string {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return "unknown"
	}
	return clientIP
}
