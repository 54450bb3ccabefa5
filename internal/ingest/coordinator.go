package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"media-library/internal/index"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/metrics"
	"media-library/internal/source"
)

// SyncStats summarizes one reconciliation pass against the asset
// source.
type SyncStats struct {
	Listed   int           `json:"listed"`
	Added    int           `json:"added"`
	Changed  int           `json:"changed"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}

// Coordinator diffs the asset source against the index and manages the
// analysis queue: enqueue with priority, cancellation, pause/resume.
type Coordinator struct {
	idx   *index.Index
	src   source.AssetSource
	queue *Queue

	syncMu sync.Mutex // one Sync at a time

	mu       sync.Mutex
	canceled map[string]struct{}
}

// NewCoordinator creates a coordinator feeding the given queue.
func NewCoordinator(idx *index.Index, src source.AssetSource, queue *Queue) *Coordinator {
	return &Coordinator{
		idx:      idx,
		src:      src,
		queue:    queue,
		canceled: make(map[string]struct{}),
	}
}

// Queue returns the analysis queue the coordinator feeds.
func (c *Coordinator) Queue() *Queue { return c.queue }

// Sync reconciles the source's current listing against the index:
// unknown ids are created Unprocessed, ids with a changed fingerprint
// are reset for re-analysis (prior attributes stay searchable until the
// new commit), and indexed ids missing from the listing are removed.
func (c *Coordinator) Sync(ctx context.Context) (SyncStats, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	start := time.Now()
	assets, err := c.src.ListItems(ctx)
	if err != nil {
		return SyncStats{}, fmt.Errorf("failed to list asset source: %w", err)
	}

	stats := SyncStats{Listed: len(assets)}
	listed := make(map[string]struct{}, len(assets))

	for _, a := range assets {
		listed[a.ID] = struct{}{}

		current, known := c.idx.Get(a.ID)
		if !known {
			item := library.MediaItem{
				ID:          a.ID,
				Fingerprint: a.Fingerprint,
				CreatedAt:   a.CreatedAt,
				Kind:        a.Kind,
				State:       library.StateUnprocessed,
			}
			if err := c.idx.Add(item); err != nil {
				logging.Warn("Failed to add %s to index: %v", a.ID, err)
				continue
			}
			stats.Added++
			continue
		}

		if current.Fingerprint != a.Fingerprint {
			if err := c.idx.ResetForReanalysis(a.ID, a.Fingerprint); err != nil {
				// Queued or in-flight: picked up on the next sync.
				var ste *library.StateTransitionError
				if !errors.As(err, &ste) {
					logging.Warn("Failed to reset %s: %v", a.ID, err)
				}
				continue
			}
			stats.Changed++
		}
	}

	for _, item := range c.idx.Items() {
		if _, present := listed[item.ID]; present {
			continue
		}
		c.queue.Remove([]string{item.ID})
		if c.idx.Remove(item.ID) {
			stats.Removed++
		}
	}

	stats.Duration = time.Since(start)
	metrics.SyncRunsTotal.Inc()
	metrics.SyncLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.SyncItemsDiscovered.Add(float64(stats.Added + stats.Changed))
	logging.Info("Sync complete: %d listed, %d added, %d changed, %d removed in %v",
		stats.Listed, stats.Added, stats.Changed, stats.Removed, stats.Duration)
	return stats, nil
}

// Enqueue pushes the given items into the analysis queue with the
// given priority mode and returns the ids actually enqueued. A nil ids
// slice enqueues every Unprocessed item; explicit ids may also name
// Processed/Failed items, which re-enter the queue via the re-analyze
// transition. Items already Queued or Processing are skipped.
func (c *Coordinator) Enqueue(ids []string, mode PriorityMode) []string {
	c.queue.SetMode(mode)

	var candidates []library.MediaItem
	if ids == nil {
		for _, item := range c.idx.Items() {
			if item.State == library.StateUnprocessed {
				candidates = append(candidates, item)
			}
		}
	} else {
		for _, id := range ids {
			if item, ok := c.idx.Get(id); ok {
				candidates = append(candidates, item)
			}
		}
	}

	var enqueued []string
	for _, item := range candidates {
		if err := c.idx.MarkQueued(item.ID); err != nil {
			// Already queued/processing, or unknown: skip.
			continue
		}
		seq, _ := c.idx.Seq(item.ID)
		if c.queue.Push(Entry{ID: item.ID, Created: item.CreatedAt, Seq: seq}) == 0 {
			// Queue refused (closed); undo the transition.
			if err := c.idx.RevertQueued(item.ID); err != nil {
				logging.Warn("Failed to revert %s after queue refusal: %v", item.ID, err)
			}
			continue
		}
		c.mu.Lock()
		delete(c.canceled, item.ID)
		c.mu.Unlock()
		enqueued = append(enqueued, item.ID)
	}

	if len(enqueued) > 0 {
		logging.Info("Enqueued %d items (%s priority)", len(enqueued), mode)
	}
	return enqueued
}

// Cancel removes not-yet-started items from the queue and returns how
// many were removed. Items already mid-analysis are not interrupted;
// they are flagged so the scheduler discards their result on
// completion instead of committing it.
func (c *Coordinator) Cancel(ids []string) int {
	removed := c.queue.Remove(ids)
	for _, e := range removed {
		if err := c.idx.RevertQueued(e.ID); err != nil {
			logging.Warn("Failed to revert cancelled item %s: %v", e.ID, err)
		}
	}

	stillWanted := make(map[string]struct{}, len(removed))
	for _, e := range removed {
		stillWanted[e.ID] = struct{}{}
	}

	c.mu.Lock()
	for _, id := range ids {
		if _, wasQueued := stillWanted[id]; wasQueued {
			continue
		}
		// StateQueued here means a worker popped the entry but has not
		// claimed it yet; flag it so the claim is discarded, same as an
		// item already mid-analysis.
		if item, ok := c.idx.Get(id); ok &&
			(item.State == library.StateProcessing || item.State == library.StateQueued) {
			c.canceled[id] = struct{}{}
		}
	}
	c.mu.Unlock()

	if len(removed) > 0 {
		logging.Info("Cancelled %d queued items", len(removed))
	}
	return len(removed)
}

// IsCanceled reports whether an in-flight item's result should be
// discarded.
func (c *Coordinator) IsCanceled(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.canceled[id]
	return ok
}

// ClearCanceled forgets the cancellation flag once the scheduler has
// honored it.
func (c *Coordinator) ClearCanceled(id string) {
	c.mu.Lock()
	delete(c.canceled, id)
	c.mu.Unlock()
}

// Pause suspends delivery of queued work to the scheduler.
func (c *Coordinator) Pause() {
	c.queue.Pause()
	logging.Info("Ingestion paused")
}

// Resume restarts delivery after Pause.
func (c *Coordinator) Resume() {
	c.queue.Resume()
	logging.Info("Ingestion resumed")
}
