// Package stores opens the record store selected by configuration.
//
// The memory adapter needs no setup. The sqlite and postgres adapters open
// a database/sql handle through records.Open and, when asked, apply the
// embedded goose migrations before returning.
//
// # What this package must NOT do
//
//   - Hold a reference to the store after Open returns.
//   - Decide which adapter to use. That is DB_ADAPTER's job.
package stores
