package ingest

import (
	"context"
	"testing"
	"time"
)

func entryAt(id string, created time.Time, seq int64) Entry {
	return Entry{ID: id, Created: created, Seq: seq}
}

func popAll(t *testing.T, q *Queue) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var ids []string
	for q.Len() > 0 {
		e, ok := q.Pop(ctx)
		if !ok {
			t.Fatal("Pop returned !ok with entries pending")
		}
		ids = append(ids, e.ID)
	}
	return ids
}

func TestQueueFIFOOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(PriorityFIFO)
	now := time.Now()
	q.Push(
		entryAt("first", now.AddDate(-2, 0, 0), 1),
		entryAt("second", now, 2),
		entryAt("third", now.AddDate(-1, 0, 0), 3),
	)

	got := popAll(t, q)
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FIFO order = %v, want %v", got, want)
		}
	}
}

func TestQueueByYearOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(PriorityByYear)
	q.Push(
		entryAt("old", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), 1),
		entryAt("new-jan", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 2),
		entryAt("new-jun", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 3),
		entryAt("mid", time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), 4),
		// Same timestamp as new-jun: id ascending breaks the tie.
		entryAt("aaa-tie", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 5),
	)

	got := popAll(t, q)
	want := []string{"aaa-tie", "new-jun", "new-jan", "mid", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("by-year order = %v, want %v", got, want)
		}
	}
}

func TestQueueDeduplicates(t *testing.T) {
	t.Parallel()

	q := NewQueue(PriorityFIFO)
	now := time.Now()
	if added := q.Push(entryAt("a", now, 1), entryAt("a", now, 2)); added != 1 {
		t.Errorf("Push added %d, want 1", added)
	}
	if added := q.Push(entryAt("a", now, 3)); added != 0 {
		t.Errorf("duplicate Push added %d, want 0", added)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	t.Parallel()

	q := NewQueue(PriorityFIFO)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan Entry, 1)
	go func() {
		e, ok := q.Pop(ctx)
		if ok {
			done <- e
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(entryAt("late", time.Now(), 1))

	select {
	case e, ok := <-done:
		if !ok || e.ID != "late" {
			t.Fatalf("Pop = (%+v, %v)", e, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestQueuePopHonorsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(PriorityFIFO)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Pop returned ok after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return on context cancellation")
	}
}

func TestQueuePauseResume(t *testing.T) {
	t.Parallel()

	q := NewQueue(PriorityFIFO)
	q.Push(entryAt("a", time.Now(), 1))
	q.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan Entry, 1)
	go func() {
		if e, ok := q.Pop(ctx); ok {
			got <- e
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop delivered while paused")
	case <-time.After(50 * time.Millisecond):
	}

	q.Resume()
	select {
	case e := <-got:
		if e.ID != "a" {
			t.Errorf("delivered %s, want a", e.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not deliver after Resume")
	}
}

func TestQueueRemove(t *testing.T) {
	t.Parallel()

	q := NewQueue(PriorityFIFO)
	now := time.Now()
	q.Push(entryAt("a", now, 1), entryAt("b", now, 2), entryAt("c", now, 3))

	removed := q.Remove([]string{"b", "missing"})
	if len(removed) != 1 || removed[0].ID != "b" {
		t.Fatalf("Remove = %+v, want [b]", removed)
	}
	if q.Contains("b") {
		t.Error("b still a member after Remove")
	}

	got := popAll(t, q)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("remaining order = %v, want [a c]", got)
	}
}

func TestQueueCloseWakesConsumers(t *testing.T) {
	t.Parallel()

	q := NewQueue(PriorityFIFO)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Pop returned ok from empty closed queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
}
