// Package index implements the concurrent multi-attribute MediaIndex.
//
// The index stores per-item metadata plus inverted indices over tags,
// text/location tokens, media kind, and a date-sorted structure for
// range scans. An item's contribution to every inverted index is
// swapped atomically at commit: readers never observe old entries
// removed with new entries not yet present, or vice versa.
//
// Concurrency model: each item carries its own mutex serializing state
// transitions and commits for that id; the shared maps are guarded by a
// single RWMutex held only for the short swap. Commits on unrelated
// items do not serialize against each other outside that window, and
// readers are snapshot-consistent against a monotonically increasing
// version stamp.
package index
