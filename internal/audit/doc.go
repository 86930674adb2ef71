// Package audit implements async event dispatching for security-relevant
// operations.
//
// # Components
//
//   - [Sink] is the event consumer interface. Provided sinks: channel, JSON
//     lines writer, structured log, Redis pub/sub, no-op and fan-out.
//   - [Dispatcher] is a buffered async relay with drop-if-full or
//     block-if-full semantics.
//   - [Event] is the structured record with timestamp, type, user, role, IP
//     and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import schoolauth or any sibling internal package except logging.
package audit
