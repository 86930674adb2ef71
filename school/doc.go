// Package school implements the student and teacher operations of the music
// school on top of a records.Store, reading through cache-aside accessors.
//
// Every write goes through an accessor's Write so that all cache keys
// derived from the record (id, email, batch) are invalidated together.
//
// [Directory] adapts the same caches to the schoolauth.Directory interface
// used by the auth engine.
//
// # What this package must NOT do
//
//   - Issue or verify tokens. Callers pass an already verified identity.
//   - Talk to Redis directly. The cache transport and the notification bus
//     are injected.
package school
