// Package limiters holds the named school request policies built on top of
// the internal/rate fixed-window counter.
//
// # Policies
//
//   - auth: login and refresh endpoints, 5 requests per 15 minutes per client address.
//   - api: every /api request, 100 requests per 15 minutes per client address.
//
// Every request counts, whether or not its credentials turn out valid.
//
// # What this package must NOT do
//
//   - Import schoolauth or any sibling internal package except internal/rate.
//   - Decide HTTP responses; the middleware maps decisions to 429s.
package limiters
