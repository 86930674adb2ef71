package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Transport.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// ErrUnavailable is returned (wrapped) when the transport cannot serve a call.
var ErrUnavailable = errors.New("cache unavailable")

// Transport is the byte-level key/value contract the accessor relies on.
type Transport interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Healthy reports the last known state of the connection. It never
	// performs I/O.
	Healthy() bool
}
