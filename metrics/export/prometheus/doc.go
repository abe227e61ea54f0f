// Package prometheus exposes authcore engine metrics through
// client_golang.
//
// [NewCollector] wraps an engine as a prometheus.Collector; [Handler] serves
// it from a private registry. Counters are named authcore_*_total and
// latency histograms authcore_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
