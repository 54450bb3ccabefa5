// Package ingest detects new and changed items from the asset source
// and feeds them into the analysis queue.
//
// The Coordinator diffs the source's listing against the index on each
// Sync, resetting changed items for re-analysis without a blank gap in
// search results. The Queue is a concurrency-safe priority structure
// with blocking dequeue, supporting FIFO (discovery order) and
// by-year (newest first) ordering, plus pause/resume and cooperative
// cancellation of queued and in-flight work.
package ingest
