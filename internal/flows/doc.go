// Package flows contains pure-function orchestrators for the Engine's
// session operations.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunValidate) accepts a
// typed dependency struct and returns a result carrying either the payload or
// a classified failure. The root engine maps failure kinds to its sentinel
// errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the directory, password verifier, JWT
// manager and session store. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import schoolauth (to avoid import cycles).
//   - Emit metrics or audit events. That is the Engine's job.
package flows
