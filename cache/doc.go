// Package cache implements cache-aside reads over a pluggable key/value
// [Transport], with Redis as the production transport.
//
// # Read path
//
// [Accessor.Read] returns a cached value when present and decodable, and
// otherwise calls the loader, stores the encoded result with the accessor TTL
// and returns it. Concurrent misses for one key share a single load.
//
// # Write path
//
// [Accessor.Write] runs the caller's mutation against the backing store and
// then deletes every index key of both the pre-write and post-write record.
// A delete that cannot be performed is remembered in a [Pending] set; while
// that set is non-empty reads bypass the cache entirely, so a write followed
// by a read never observes the pre-write value.
//
// # What this package must NOT do
//
//   - Return transport errors to callers. A broken cache degrades to direct
//     store access.
//   - Know anything about students, teachers or tokens beyond key helpers.
package cache
