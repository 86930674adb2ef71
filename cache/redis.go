package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxmusicschool/schoolauth/internal/logging"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RedisOptions tunes connection management of a RedisTransport.
type RedisOptions struct {
	// MaxAttempts bounds the connect retries of Initialize. Default 10.
	MaxAttempts int
	// RetryStep is multiplied by the attempt number to get the delay before
	// the next attempt. Default 100ms.
	RetryStep time.Duration
	// PingInterval is the period of the background health monitor. Default 5s.
	PingInterval time.Duration
	// OpTimeout bounds each monitor ping. Default 1s.
	OpTimeout time.Duration
	Logger    logging.Logger
}

// RedisTransport is a Transport over go-redis. The client is owned by the
// caller; Close only stops the health monitor.
type RedisTransport struct {
	client  redis.UniversalClient
	opts    RedisOptions
	logger  logging.Logger
	healthy atomic.Bool
	warn    rate.Sometimes

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewRedisTransport performs no I/O. The transport reports unhealthy until
// Initialize succeeds.
func NewRedisTransport(client redis.UniversalClient, opts RedisOptions) *RedisTransport {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.RetryStep <= 0 {
		opts.RetryStep = 100 * time.Millisecond
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 5 * time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = time.Second
	}
	return &RedisTransport{
		client: client,
		opts:   opts,
		logger: logging.OrNop(opts.Logger).With("component", "cache"),
		warn:   rate.Sometimes{First: 1, Interval: 30 * time.Second},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Initialize pings Redis until it answers, waiting attempt*RetryStep between
// attempts, and gives up after MaxAttempts. On success it starts the
// background health monitor.
func (t *RedisTransport) Initialize(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= t.opts.MaxAttempts; attempt++ {
		lastErr = t.client.Ping(ctx).Err()
		if lastErr == nil {
			t.healthy.Store(true)
			t.startOnce.Do(func() { go t.monitor() })
			t.logger.Info(ctx, "redis connected", "attempts", attempt)
			return nil
		}
		if attempt == t.opts.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * t.opts.RetryStep
		t.logger.Warn(ctx, "redis connect failed, retrying", "attempt", attempt, "delay", delay, "err", lastErr)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts: %v", ErrUnavailable, t.opts.MaxAttempts, lastErr)
}

func (t *RedisTransport) monitor() {
	defer close(t.done)
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.opts.OpTimeout)
			err := t.client.Ping(ctx).Err()
			cancel()
			t.observe(ctx, err)
		}
	}
}

// Close stops the health monitor. It does not close the Redis client.
func (t *RedisTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stop)
		started := true
		t.startOnce.Do(func() { started = false })
		if started {
			<-t.done
		}
	})
	return nil
}

func (t *RedisTransport) Healthy() bool {
	return t.healthy.Load()
}

func (t *RedisTransport) observe(ctx context.Context, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		if !t.healthy.Swap(true) {
			t.logger.Info(ctx, "redis reachable again")
		}
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The caller gave up; that says nothing about Redis.
		return
	}
	t.healthy.Store(false)
	t.warn.Do(func() {
		t.logger.Warn(ctx, "redis unavailable, serving without cache", "err", err)
	})
}

func (t *RedisTransport) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := t.client.Get(ctx, key).Bytes()
	t.observe(ctx, err)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (t *RedisTransport) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := t.client.Set(ctx, key, value, ttl).Err()
	t.observe(ctx, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (t *RedisTransport) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := t.client.Del(ctx, keys...).Err()
	t.observe(ctx, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
