package metrics

import "time"

// ObserveSnapshotOp starts timing a snapshot store operation and returns
// a completion function that records duration and status.
//
// Usage:
//
//	done := metrics.ObserveSnapshotOp("save")
//	err := store.save(...)
//	done(err)
func ObserveSnapshotOp(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		SnapshotOpsTotal.WithLabelValues(operation, status).Inc()
		SnapshotOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
