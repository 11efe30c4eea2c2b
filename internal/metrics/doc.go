// Package metrics exposes ingestion counters in Prometheus format.
//
// Every metric is registered at package init; row and batch counters are
// labelled by year, so a multi-year run charts each partition separately.
// Serve publishes the registry on /metrics and shuts the listener down with
// the run's context.
package metrics
