// Package internal holds helpers private to schoolauth, currently random
// secret generation for development configs and schoolctl.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: environment loading for cmd/schoold and cmd/schoolctl
//   - flows: pure-function orchestration behind every Engine operation
//   - limiters: the auth and api request policies
//   - logging: context-aware Logger over log/slog
//   - rate: Redis fixed-window counters with an in-process fallback
//
// # What this package must NOT do
//
//   - Export types that appear in the public schoolauth API.
package internal
