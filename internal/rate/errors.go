package rate

import "errors"

var (
	// ErrRateLimited is returned by Enforce when the window budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures observed by the limiter.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidPolicy is returned for policies without a positive limit and window.
	ErrInvalidPolicy = errors.New("invalid rate policy")
)
