// Package workers computes worker pool sizes for the analysis pipeline.
//
// Sizing is derived from GOMAXPROCS (which tracks container CPU limits)
// scaled by a task-type multiplier, with an optional hard cap and an
// ANALYSIS_WORKERS environment override.
package workers
