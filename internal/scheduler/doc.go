// Package scheduler runs the bounded worker pool that drains the
// analysis queue.
//
// Each worker claims an item by atomically marking it Processing at
// dequeue, which guarantees at-most-one worker per id. Every configured
// analyzer capability runs independently: transient failures are
// retried with exponential backoff up to an attempt ceiling, exhausted
// capabilities contribute nothing, and only a permanent (structural)
// failure marks the whole item Failed. Results are committed to the
// index as one atomic step; cancelled in-flight results are computed
// but discarded.
//
// Batch progress is tracked with atomic counters so the reported
// fraction is monotonically non-decreasing for the life of a batch.
package scheduler
