// Package schoolauth is the authentication engine of the Max Music School
// platform: short-lived JWT access tokens, rotating refresh tokens stored
// in Redis, role checks and per-address rate limits.
//
// Engine methods are safe to call from multiple goroutines once
// [Engine.Initialize] has succeeded.
//
// # Architecture boundaries
//
// schoolauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([Identity], [LoginResult], [MetricsSnapshot]). Flow
// orchestration, rate windows and audit dispatch live under internal/.
// Students and teachers are resolved through a [Directory]; the school
// package supplies the cached implementation over the record store.
//
// # What this package must NOT do
//
//   - Expose why a token was rejected. Every token or refresh-session failure
//     is [ErrInvalidToken].
//   - Perform I/O in [Builder.Build]. Connections are made by Initialize.
//   - Import packages that re-import schoolauth.
//
// # Performance contract
//
// Validate is the hot path. It verifies the access token locally and never
// touches Redis or the record store. Login, Refresh and Logout are allowed
// one Redis round trip for the session plus the directory lookup.
package schoolauth
