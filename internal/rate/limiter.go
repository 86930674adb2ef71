package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

// Policy is a named fixed-window budget.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

func (p Policy) validate() error {
	if p.Name == "" || p.Limit <= 0 || p.Window <= 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidPolicy, p)
	}
	return nil
}

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed    bool
	Limit      int
	Count      int
	Remaining  int
	RetryAfter time.Duration
	// Local is true when the decision came from the in-process window.
	Local bool
}

// Limiter counts requests per policy and subject.
type Limiter struct {
	redis  redis.UniversalClient
	local  *localWindows
	logger logging.Logger
	warn   xrate.Sometimes
	now    func() time.Time
}

// New creates a [Limiter]. A nil Redis client keeps every window local.
func New(redisClient redis.UniversalClient, logger logging.Logger) *Limiter {
	return &Limiter{
		redis:  redisClient,
		local:  newLocalWindows(),
		logger: logging.OrNop(logger).With("component", "rate"),
		warn:   xrate.Sometimes{First: 1, Interval: time.Minute},
		now:    time.Now,
	}
}

// Allow counts one request for subject under p and reports whether it is
// within budget. Redis failures fall back to the local window and are not
// returned.
func (l *Limiter) Allow(ctx context.Context, p Policy, subject string) (Decision, error) {
	if err := p.validate(); err != nil {
		return Decision{}, err
	}
	key := windowKey(p.Name, subject)

	if l.redis != nil {
		count, ttl, err := l.incrementWithTTL(ctx, key, p.Window)
		if err == nil {
			return decide(p, count, ttl, false), nil
		}
		l.warn.Do(func() {
			l.logger.Warn(ctx, "rate limiter using local windows", "err", err)
		})
	}

	count, ttl := l.local.increment(key, p.Window, l.now())
	return decide(p, count, ttl, true), nil
}

// Enforce is Allow returning ErrRateLimited when the budget is spent.
func (l *Limiter) Enforce(ctx context.Context, p Policy, subject string) (Decision, error) {
	d, err := l.Allow(ctx, p, subject)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, ErrRateLimited
	}
	return d, nil
}

func decide(p Policy, count int64, ttl time.Duration, local bool) Decision {
	if ttl <= 0 || ttl > p.Window {
		ttl = p.Window
	}
	d := Decision{
		Allowed:   count <= int64(p.Limit),
		Limit:     p.Limit,
		Count:     int(count),
		Remaining: p.Limit - int(count),
		Local:     local,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return count, window, nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		// The key lost its expiry (EXPIRE failed after INCR); restart the window.
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		ttl = window
	}
	return count, ttl, nil
}

func windowKey(policy, subject string) string {
	return "rl:" + policy + ":" + subject
}

type localWindow struct {
	count   int64
	resetAt time.Time
}

// localWindows is the per-instance fallback. Expired windows are swept
// whenever the map doubles past its last swept size.
type localWindows struct {
	mu        sync.Mutex
	windows   map[string]*localWindow
	sweepNext int
}

func newLocalWindows() *localWindows {
	return &localWindows{windows: make(map[string]*localWindow), sweepNext: 1024}
}

func (w *localWindows) increment(key string, window time.Duration, now time.Time) (int64, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.windows) >= w.sweepNext {
		for k, win := range w.windows {
			if !now.Before(win.resetAt) {
				delete(w.windows, k)
			}
		}
		w.sweepNext = 2 * len(w.windows)
		if w.sweepNext < 1024 {
			w.sweepNext = 1024
		}
	}

	win, ok := w.windows[key]
	if !ok || !now.Before(win.resetAt) {
		win = &localWindow{resetAt: now.Add(window)}
		w.windows[key] = win
	}
	win.count++
	return win.count, win.resetAt.Sub(now)
}
