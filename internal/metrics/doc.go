// Package metrics defines the Prometheus metrics exposed by the media
// library pipeline.
//
// Metrics are grouped by subsystem:
//   - HTTP request counts, durations and in-flight gauge
//   - Scheduler throughput, retries, failures and batch progress
//   - Index commits, size and version
//   - Query latency and result counts
//   - Snapshot store operations
//
// All metrics are registered via promauto at package load and served on
// the /metrics endpoint.
package metrics
