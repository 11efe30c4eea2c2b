// Package importer drives the per-year ingestion pipeline.
//
// A Partition owns one year's fetch -> decompress -> parse -> clean ->
// batch -> upsert pass and reports a terminal state. The Runner sequences
// partitions in ascending year order, skips years already recorded in the
// store, and aggregates a RunResult that maps to the process exit code.
//
// Partitions run strictly one at a time. The memory ceiling is defined by a
// single in-flight pipeline: one decompression window plus one pending
// batch. Cancellation is polled at batch boundaries so an in-flight commit
// always finishes before the partition winds down.
package importer
