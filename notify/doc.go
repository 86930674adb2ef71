// Package notify fans domain events (batch changes, attendance updates,
// change-request status) out to connected clients over Redis pub/sub.
//
// Publishing is best effort: a failed publish is reported to the caller but
// never rolls back the write that produced it.
//
// # What this package must NOT do
//
//   - Speak any client socket protocol. Gateways subscribe and forward.
//   - Persist messages. Subscribers that are offline miss them.
package notify
