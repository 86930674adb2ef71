package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Pending is the set of keys whose invalidation has not reached the
// transport yet, plus a write generation. Accessors sharing a transport
// should share one Pending.
type Pending struct {
	mu   sync.Mutex
	keys map[string]struct{}
	// generation advances on every write; a load that raced with a write
	// does not populate the cache.
	generation atomic.Uint64
}

func NewPending() *Pending {
	return &Pending{keys: make(map[string]struct{})}
}

// Add records keys as pending.
func (p *Pending) Add(keys ...string) {
	if len(keys) == 0 {
		return
	}
	p.mu.Lock()
	for _, k := range keys {
		p.keys[k] = struct{}{}
	}
	p.mu.Unlock()
}

// Len returns the number of pending keys.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Keys returns a sorted snapshot of pending keys.
func (p *Pending) Keys() []string {
	p.mu.Lock()
	out := make([]string, 0, len(p.keys))
	for k := range p.keys {
		out = append(out, k)
	}
	p.mu.Unlock()
	sort.Strings(out)
	return out
}

// Flush deletes all pending keys through t. Keys are removed from the set
// only after the delete succeeds. It returns how many keys were flushed.
func (p *Pending) Flush(ctx context.Context, t Transport) (int, error) {
	keys := p.Keys()
	if len(keys) == 0 {
		return 0, nil
	}
	if err := t.Del(ctx, keys...); err != nil {
		return 0, err
	}

	p.mu.Lock()
	for _, k := range keys {
		delete(p.keys, k)
	}
	p.mu.Unlock()
	return len(keys), nil
}

// Generation returns the current write generation.
func (p *Pending) Generation() uint64 {
	return p.generation.Load()
}

func (p *Pending) advance() {
	p.generation.Add(1)
}
