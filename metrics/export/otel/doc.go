// Package otel publishes schoolauth metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one observable counter per counter metric and one
// observable gauge per latency bucket. A single callback reads the engine
// snapshot on each collection cycle, so nothing is recorded between scrapes.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers pass in a Meter.
//   - Mutate engine state.
package otel
