// Package otel publishes authcore engine metrics through an OpenTelemetry
// meter.
//
// [New] registers Int64ObservableCounter instruments for each counter and
// observable gauges per histogram bucket. A single callback reads the
// engine snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
