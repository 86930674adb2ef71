// Package middleware adapts schoolauth.Engine to net/http.
//
// # Gate
//
//   - [Guard] verifies the bearer access token and attaches the
//     schoolauth.Identity to the request context.
//   - [RequireRole] rejects identities outside a role set.
//   - [RateLimit] applies a named rate-limit policy per client address.
//
// # Plumbing
//
// [ClientIP], [SecurityHeaders], [RequestLogger] and [Recover] carry no
// authentication logic. Error responses share one JSON shape written by
// [WriteError].
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Reveal why a token was rejected.
package middleware
