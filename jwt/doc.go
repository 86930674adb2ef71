// Package jwt issues and verifies the short-lived access tokens and long-lived
// refresh tokens used by schoolauth.
//
// # Secrets
//
// Access and refresh tokens are signed with two independent HS256 secrets, so a
// leaked access secret cannot mint refresh tokens and vice versa. Tokens also
// carry a typ claim that is checked on verification.
//
// # What this package must NOT do
//
//   - Touch Redis or any other I/O.
//   - Tell callers why a token was rejected (every failure is [ErrInvalidToken]).
package jwt
