// Package otel binds goRemote engine metrics to OpenTelemetry instruments.
//
// [New] registers an Int64ObservableCounter for every engine counter and an
// Int64ObservableGauge per latency bucket. One callback reads
// MetricsSnapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
