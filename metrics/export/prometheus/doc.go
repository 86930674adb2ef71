// Package prometheus renders schoolauth metrics in the Prometheus text
// exposition format.
//
// [NewExporter] reads an engine's snapshot on every scrape. Counters are
// named schoolauth_*_total; the single histogram is
// schoolauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
