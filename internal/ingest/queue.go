package ingest

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"media-library/internal/metrics"
)

// PriorityMode selects the ordering of pending work.
type PriorityMode int

const (
	// PriorityFIFO dequeues in discovery order.
	PriorityFIFO PriorityMode = iota
	// PriorityByYear dequeues by creation-year descending, then
	// creation-date descending, then id ascending for determinism.
	PriorityByYear
)

func (m PriorityMode) String() string {
	if m == PriorityByYear {
		return "by-year"
	}
	return "fifo"
}

// Entry is one unit of queued work.
type Entry struct {
	ID      string
	Created time.Time

	// Seq is the discovery order, the FIFO sort key.
	Seq int64
}

// entryHeap implements heap.Interface with a mode-dependent ordering.
type entryHeap struct {
	entries []Entry
	mode    PriorityMode
}

func (h *entryHeap) Len() int { return len(h.entries) }

func (h *entryHeap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if h.mode == PriorityByYear {
		if ay, by := a.Created.Year(), b.Created.Year(); ay != by {
			return ay > by
		}
		if !a.Created.Equal(b.Created) {
			return a.Created.After(b.Created)
		}
		return a.ID < b.ID
	}
	return a.Seq < b.Seq
}

func (h *entryHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *entryHeap) Push(v any) {
	h.entries = append(h.entries, v.(Entry))
}

func (h *entryHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

// Queue is a concurrency-safe priority queue with blocking dequeue.
// An id is never present twice: pushes for a member id are dropped.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    entryHeap
	members map[string]struct{}
	paused  bool
	closed  bool
}

// NewQueue creates an empty queue with the given priority mode.
func NewQueue(mode PriorityMode) *Queue {
	q := &Queue{
		heap:    entryHeap{mode: mode},
		members: make(map[string]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SetMode changes the priority mode and reorders pending work.
func (q *Queue) SetMode(mode PriorityMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.mode == mode {
		return
	}
	q.heap.mode = mode
	heap.Init(&q.heap)
}

// Push enqueues entries, skipping ids already present. Returns the
// number actually added.
func (q *Queue) Push(entries ...Entry) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}

	added := 0
	for _, e := range entries {
		if _, dup := q.members[e.ID]; dup {
			continue
		}
		q.members[e.ID] = struct{}{}
		heap.Push(&q.heap, e)
		added++
	}
	if added > 0 {
		metrics.SchedulerQueueDepth.Set(float64(q.heap.Len()))
		q.cond.Broadcast()
	}
	return added
}

// Pop blocks until an entry is available, the queue is closed, or ctx
// is done. Returns ok=false when no entry will ever be delivered.
// While the queue is paused, Pop blocks even if entries are pending.
func (q *Queue) Pop(ctx context.Context) (Entry, bool) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return Entry{}, false
		}
		if !q.paused && q.heap.Len() > 0 {
			e := heap.Pop(&q.heap).(Entry)
			delete(q.members, e.ID)
			metrics.SchedulerQueueDepth.Set(float64(q.heap.Len()))
			return e, true
		}
		if q.closed {
			return Entry{}, false
		}
		q.cond.Wait()
	}
}

// Remove deletes the given ids from the queue and returns the removed
// entries. Ids not present (already dequeued or never queued) are
// skipped.
func (q *Queue) Remove(ids []string) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, member := q.members[id]; member {
			want[id] = struct{}{}
		}
	}
	if len(want) == 0 {
		return nil
	}

	var removed []Entry
	kept := q.heap.entries[:0]
	for _, e := range q.heap.entries {
		if _, hit := want[e.ID]; hit {
			removed = append(removed, e)
			delete(q.members, e.ID)
		} else {
			kept = append(kept, e)
		}
	}
	q.heap.entries = kept
	heap.Init(&q.heap)
	metrics.SchedulerQueueDepth.Set(float64(q.heap.Len()))
	return removed
}

// Contains reports whether the id is currently queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.members[id]
	return ok
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Pause stops delivery of entries; pending work stays queued.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume restarts delivery after Pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Paused reports whether delivery is paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Close wakes all blocked consumers; subsequent pops drain remaining
// entries and then report ok=false.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
