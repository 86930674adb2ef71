// Package rate provides the fixed-window request counter behind the HTTP
// rate limits.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit, PTTL to
// report when the window resets. Keys are rl:{policy}:{subject}. When Redis
// cannot be reached the same window is kept in process memory, so limits
// still hold per instance.
//
// # What this package must NOT do
//
//   - Implement named school policies (those live in internal/limiters).
//   - Fail open: a Redis outage switches to the local window, it never
//     disables limiting.
package rate
