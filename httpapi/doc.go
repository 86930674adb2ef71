// Package httpapi is the JSON-over-HTTP surface of the school service.
//
// [NewRouter] mounts the auth endpoints, the student and teacher areas and
// the operational probes on a gorilla/mux router. Authentication, role
// checks and rate limiting come from the middleware package; this package
// only decodes requests, calls the engine or school.Service and maps errors.
//
// # Errors
//
// Every failure goes through one table (see errors.go) that turns sentinel
// errors into a status and a stable code. Anything not in the table is a
// 500 with a generic message; the cause is logged, never returned.
//
// # What this package must NOT do
//
//   - Talk to Redis or the record store directly.
//   - Trust a role or user id from the request body.
package httpapi
