package cache

import (
	"context"
	"time"

	"github.com/maxmusicschool/schoolauth/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Event is reported to the accessor's observer for metrics.
type Event uint8

const (
	EventHit Event = iota + 1
	EventMiss
	EventBypass
	EventInvalidateFailed
	EventPendingFlushed
)

// Options configures an Accessor.
type Options[T any] struct {
	// TTL of populated entries. Default IdentityTTL.
	TTL time.Duration
	// IndexKeys lists every cache key under which a record may be cached.
	// Write invalidates IndexKeys(before) and IndexKeys(after).
	IndexKeys func(T) []string
	Codec     Codec[T]
	// Pending is shared between accessors over the same transport.
	Pending  *Pending
	Logger   logging.Logger
	Observer func(Event)
}

// Accessor is a typed cache-aside reader/writer. Transport failures never
// reach callers.
type Accessor[T any] struct {
	transport Transport
	ttl       time.Duration
	indexKeys func(T) []string
	codec     Codec[T]
	pending   *Pending
	logger    logging.Logger
	observer  func(Event)

	group singleflight.Group
}

func NewAccessor[T any](transport Transport, opts Options[T]) *Accessor[T] {
	if opts.TTL <= 0 {
		opts.TTL = IdentityTTL
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec[T]{}
	}
	if opts.Pending == nil {
		opts.Pending = NewPending()
	}
	if opts.Observer == nil {
		opts.Observer = func(Event) {}
	}
	return &Accessor[T]{
		transport: transport,
		ttl:       opts.TTL,
		indexKeys: opts.IndexKeys,
		codec:     opts.Codec,
		pending:   opts.Pending,
		logger:    logging.OrNop(opts.Logger),
		observer:  opts.Observer,
	}
}

type loadResult[T any] struct {
	value      T
	generation uint64
}

// Read returns the value cached under key, or calls load on a miss and
// caches its result. Errors from load are returned unchanged and never
// cached.
func (a *Accessor[T]) Read(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if !a.cacheUsable(ctx) {
		a.observer(EventBypass)
		return load(ctx)
	}

	entered := a.pending.Generation()
	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		generation := a.pending.Generation()
		if data, err := a.transport.Get(ctx, key); err == nil {
			value, decErr := a.codec.Unmarshal(data)
			if decErr == nil {
				a.observer(EventHit)
				return loadResult[T]{value: value, generation: generation}, nil
			}
			a.logger.Warn(ctx, "dropping undecodable cache entry", "key", key, "err", decErr)
			_ = a.transport.Del(ctx, key)
		}

		a.observer(EventMiss)
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		a.populate(ctx, key, value, generation)
		return loadResult[T]{value: value, generation: generation}, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	res := v.(loadResult[T])
	if res.generation < entered {
		// Joined a load that began before a write this caller already saw.
		a.observer(EventBypass)
		return load(ctx)
	}
	return res.value, nil
}

func (a *Accessor[T]) populate(ctx context.Context, key string, value T, generation uint64) {
	if a.pending.Generation() != generation || a.pending.Len() > 0 {
		return
	}
	data, err := a.codec.Marshal(value)
	if err != nil {
		a.logger.Warn(ctx, "cache encode failed", "key", key, "err", err)
		return
	}
	if a.transport.Set(ctx, key, data, a.ttl) != nil {
		return
	}
	// A write may have committed between the check above and the Set. Its
	// invalidation could have run before the Set landed, so drop the entry.
	if a.pending.Generation() != generation {
		if err := a.transport.Del(ctx, key); err != nil {
			a.pending.Add(key)
			a.observer(EventInvalidateFailed)
		}
	}
}

// cacheUsable flushes pending invalidations when it can and reports whether
// the cache may be consulted.
func (a *Accessor[T]) cacheUsable(ctx context.Context) bool {
	if !a.transport.Healthy() {
		return false
	}
	if a.pending.Len() == 0 {
		return true
	}
	n, err := a.pending.Flush(ctx, a.transport)
	if err != nil {
		return false
	}
	if n > 0 {
		a.observer(EventPendingFlushed)
		a.logger.Info(ctx, "flushed pending cache invalidations", "keys", n)
	}
	return a.pending.Len() == 0
}

// Write runs mutate against the backing store and invalidates the index
// keys of the record before and after the change. It returns the post-write
// record.
func (a *Accessor[T]) Write(ctx context.Context, mutate func(context.Context) (before, after T, err error)) (T, error) {
	before, after, err := mutate(ctx)
	a.pending.advance()
	if err != nil {
		var zero T
		return zero, err
	}

	var keys []string
	if a.indexKeys != nil {
		keys = dedupe(append(a.indexKeys(before), a.indexKeys(after)...))
	}
	a.Invalidate(ctx, keys...)
	return after, nil
}

// Invalidate deletes keys from the cache, recording them as pending when
// the transport cannot be reached.
func (a *Accessor[T]) Invalidate(ctx context.Context, keys ...string) {
	a.pending.advance()
	if len(keys) == 0 {
		return
	}
	for _, k := range keys {
		a.group.Forget(k)
	}

	if !a.transport.Healthy() {
		a.pending.Add(keys...)
		a.observer(EventInvalidateFailed)
		return
	}
	if err := a.transport.Del(ctx, keys...); err != nil {
		a.pending.Add(keys...)
		a.observer(EventInvalidateFailed)
		a.logger.Warn(ctx, "cache invalidation deferred", "keys", keys, "err", err)
	}
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
