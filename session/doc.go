// Package session persists the single valid refresh token of each user in
// Redis under refresh_token:{userId}.
//
// # Record format
//
// Values are a fixed 41-byte record: a version byte, the SHA-256 digest of the
// token, and the issue time as big-endian unix seconds. Records that do not
// decode are treated as absent and removed.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Record] encoding.
// It does NOT parse JWTs or decide whether a user may refresh; those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import schoolauth or jwt (no upward imports).
//   - Store raw refresh tokens.
//   - Report a session as valid when Redis cannot be reached.
package session
