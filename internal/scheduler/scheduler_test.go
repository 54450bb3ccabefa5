package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-library/internal/analyzer"
	"media-library/internal/index"
	"media-library/internal/ingest"
	"media-library/internal/library"
	"media-library/internal/source"
)

// fakeSource is an in-memory asset source.
type fakeSource struct {
	mu     sync.Mutex
	assets map[string]source.AssetInfo
	gone   map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		assets: make(map[string]source.AssetInfo),
		gone:   make(map[string]bool),
	}
}

func (f *fakeSource) put(id string, created time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[id] = source.AssetInfo{
		ID:          id,
		Fingerprint: "fp-" + id,
		CreatedAt:   created,
		Kind:        library.KindPhoto,
	}
}

func (f *fakeSource) vanish(id string) {
	f.mu.Lock()
	f.gone[id] = true
	f.mu.Unlock()
}

func (f *fakeSource) ListItems(ctx context.Context) ([]source.AssetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]source.AssetInfo, 0, len(f.assets))
	for _, a := range f.assets {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeSource) FetchContent(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[id] {
		return nil, fmt.Errorf("%w: %s", library.ErrAssetUnavailable, id)
	}
	if _, ok := f.assets[id]; !ok {
		return nil, fmt.Errorf("%w: %s", library.ErrAssetUnavailable, id)
	}
	return []byte(id), nil
}

// Capability stubs.
type stubTagger struct {
	fn    func(content []byte) ([]string, error)
	calls atomic.Int64
}

func (s *stubTagger) Tags(ctx context.Context, content []byte) ([]string, error) {
	s.calls.Add(1)
	return s.fn(content)
}

type stubText struct {
	fn    func(content []byte) (string, error)
	calls atomic.Int64
}

func (s *stubText) RecognizeText(ctx context.Context, content []byte) (string, error) {
	s.calls.Add(1)
	return s.fn(content)
}

// harness wires index, source, queue, coordinator and scheduler the
// way the pipeline root does.
type harness struct {
	idx   *index.Index
	src   *fakeSource
	coord *ingest.Coordinator
	sched *Scheduler
	done  chan struct{} // closed on first batch completion
}

func newHarness(t *testing.T, an analyzer.Analyzer, cfg Config) *harness {
	t.Helper()
	idx := index.New()
	src := newFakeSource()
	queue := ingest.NewQueue(ingest.PriorityFIFO)
	coord := ingest.NewCoordinator(idx, src, queue)
	sched := New(cfg, idx, src, an, queue)
	sched.SetCancellation(coord.IsCanceled, coord.ClearCanceled)

	h := &harness{idx: idx, src: src, coord: coord, sched: sched, done: make(chan struct{})}
	var once sync.Once
	sched.SetOnBatchComplete(func() {
		once.Do(func() { close(h.done) })
	})
	return h
}

// run syncs, enqueues everything, processes the batch and stops.
func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := h.coord.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	enqueued := h.coord.Enqueue(nil, ingest.PriorityFIFO)
	h.sched.ExtendBatch(len(enqueued))
	h.sched.Start(ctx)

	select {
	case <-h.done:
	case <-ctx.Done():
		t.Fatal("batch did not complete")
	}
	h.coord.Queue().Close()
	h.sched.Wait()
}

func fastConfig(workers int) Config {
	return Config{
		Workers:           workers,
		MaxAttempts:       3,
		CapabilityTimeout: time.Second,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        4 * time.Millisecond,
	}
}

func TestBatchProcessesAllItems(t *testing.T) {
	t.Parallel()

	tagger := &stubTagger{fn: func(content []byte) ([]string, error) {
		return []string{"tag-" + string(content)}, nil
	}}
	h := newHarness(t, analyzer.Analyzer{Tagger: tagger}, fastConfig(4))

	now := time.Now()
	for i := 0; i < 8; i++ {
		h.src.put(fmt.Sprintf("item-%d", i), now)
	}
	h.run(t)

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("item-%d", i)
		item, ok := h.idx.Get(id)
		if !ok {
			t.Fatalf("%s missing", id)
		}
		if item.State != library.StateProcessed {
			t.Errorf("%s state = %s, want processed", id, item.State)
		}
		if !item.HasTag("tag-" + id) {
			t.Errorf("%s missing its tag", id)
		}
	}
	if got := h.sched.Progress(); got != 1.0 {
		t.Errorf("Progress = %v, want 1.0", got)
	}
}

func TestDuplicateEnqueueAnalyzesOnce(t *testing.T) {
	t.Parallel()

	tagger := &stubTagger{fn: func([]byte) ([]string, error) {
		return []string{"beach"}, nil
	}}
	h := newHarness(t, analyzer.Analyzer{Tagger: tagger}, fastConfig(4))
	h.src.put("x", time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.coord.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// Concurrent duplicate enqueues before processing starts.
	var wg sync.WaitGroup
	admitted := atomic.Int64{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted.Add(int64(len(h.coord.Enqueue([]string{"x"}, ingest.PriorityFIFO))))
		}()
	}
	wg.Wait()
	if admitted.Load() != 1 {
		t.Fatalf("admitted %d enqueues, want 1", admitted.Load())
	}

	h.sched.ExtendBatch(1)
	h.sched.Start(ctx)
	select {
	case <-h.done:
	case <-ctx.Done():
		t.Fatal("batch did not complete")
	}
	h.coord.Queue().Close()
	h.sched.Wait()

	if got := tagger.calls.Load(); got != 1 {
		t.Errorf("analyzer invoked %d times, want exactly 1", got)
	}
	item, _ := h.idx.Get("x")
	if item.State != library.StateProcessed {
		t.Errorf("state = %s, want processed", item.State)
	}
}

func TestTransientRetryThenSuccess(t *testing.T) {
	t.Parallel()

	var failures atomic.Int64
	tagger := &stubTagger{}
	tagger.fn = func([]byte) ([]string, error) {
		if failures.Add(1) <= 2 {
			return nil, analyzer.Transient(analyzer.CapabilityTags, errors.New("model busy"))
		}
		return []string{"nature"}, nil
	}

	h := newHarness(t, analyzer.Analyzer{Tagger: tagger}, fastConfig(1))
	h.src.put("a", time.Now())
	h.run(t)

	if got := tagger.calls.Load(); got != 3 {
		t.Errorf("tagger invoked %d times, want 3 (2 failures + success)", got)
	}
	item, _ := h.idx.Get("a")
	if item.State != library.StateProcessed || !item.HasTag("nature") {
		t.Errorf("item = %+v", item)
	}
}

func TestRetryExhaustionLeavesContributionAbsent(t *testing.T) {
	t.Parallel()

	// OCR times out on every attempt; tagging succeeds.
	text := &stubText{fn: func([]byte) (string, error) {
		return "", analyzer.Transient(analyzer.CapabilityText, errors.New("ocr timeout"))
	}}
	tagger := &stubTagger{fn: func([]byte) ([]string, error) {
		return []string{"beach"}, nil
	}}

	h := newHarness(t, analyzer.Analyzer{Tagger: tagger, TextRecognizer: text}, fastConfig(1))
	h.src.put("y", time.Now())
	h.run(t)

	if got := text.calls.Load(); got != 3 {
		t.Errorf("OCR attempted %d times, want 3 (attempt ceiling)", got)
	}

	item, _ := h.idx.Get("y")
	if item.State != library.StateProcessed {
		t.Errorf("state = %s, want processed despite exhausted OCR", item.State)
	}
	if item.Attributes.DetectedText != "" {
		t.Errorf("detected text = %q, want empty", item.Attributes.DetectedText)
	}
	if !item.HasTag("beach") {
		t.Error("successful capability contribution lost")
	}
}

func TestPermanentFailureMarksItemFailed(t *testing.T) {
	t.Parallel()

	tagger := &stubTagger{fn: func([]byte) ([]string, error) {
		return nil, analyzer.Permanent(analyzer.CapabilityTags, errors.New("unreadable"))
	}}
	h := newHarness(t, analyzer.Analyzer{Tagger: tagger}, fastConfig(1))
	h.src.put("broken", time.Now())
	h.run(t)

	if got := tagger.calls.Load(); got != 1 {
		t.Errorf("permanent failure retried: %d calls", got)
	}
	item, _ := h.idx.Get("broken")
	if item.State != library.StateFailed {
		t.Errorf("state = %s, want failed", item.State)
	}
}

func TestVanishedAssetDroppedSilently(t *testing.T) {
	t.Parallel()

	tagger := &stubTagger{fn: func([]byte) ([]string, error) {
		return []string{"t"}, nil
	}}
	h := newHarness(t, analyzer.Analyzer{Tagger: tagger}, fastConfig(1))
	h.src.put("ghost", time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.coord.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	// Vanishes between enumeration and analysis.
	h.src.vanish("ghost")

	enqueued := h.coord.Enqueue(nil, ingest.PriorityFIFO)
	h.sched.ExtendBatch(len(enqueued))
	h.sched.Start(ctx)
	select {
	case <-h.done:
	case <-ctx.Done():
		t.Fatal("batch did not complete")
	}
	h.coord.Queue().Close()
	h.sched.Wait()

	if _, ok := h.idx.Get("ghost"); ok {
		t.Error("vanished item still indexed")
	}
	if tagger.calls.Load() != 0 {
		t.Error("analyzer invoked for vanished item")
	}
	if h.sched.Progress() != 1.0 {
		t.Errorf("Progress = %v, want 1.0", h.sched.Progress())
	}
}

func TestCancelInFlightDiscardsResult(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once
	tagger := &stubTagger{fn: func([]byte) ([]string, error) {
		startedOnce.Do(func() { close(started) })
		<-gate
		return []string{"late"}, nil
	}}

	h := newHarness(t, analyzer.Analyzer{Tagger: tagger}, fastConfig(1))
	h.src.put("slow", time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.coord.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	enqueued := h.coord.Enqueue(nil, ingest.PriorityFIFO)
	h.sched.ExtendBatch(len(enqueued))
	h.sched.Start(ctx)

	<-started
	// Item is mid-analysis: cancellation is cooperative.
	h.coord.Cancel([]string{"slow"})
	close(gate)

	select {
	case <-h.done:
	case <-ctx.Done():
		t.Fatal("batch did not complete")
	}
	h.coord.Queue().Close()
	h.sched.Wait()

	item, ok := h.idx.Get("slow")
	if !ok {
		t.Fatal("item vanished")
	}
	if item.State != library.StateUnprocessed {
		t.Errorf("state = %s, want unprocessed (prior state restored)", item.State)
	}
	if item.HasTag("late") {
		t.Error("cancelled result was committed")
	}
	if got := h.idx.LookupByTag("late"); got != nil {
		t.Errorf("index shows cancelled result: %v", got)
	}
}

func TestCancelledBatchLeavesOnlyCommittedItems(t *testing.T) {
	t.Parallel()

	// One worker, items gated one at a time: after 4 commits, cancel
	// everything. The in-flight fifth is discarded, the rest never run.
	release := make(chan struct{}, 10)
	var processed atomic.Int64
	tagger := &stubTagger{fn: func(content []byte) ([]string, error) {
		<-release
		processed.Add(1)
		return []string{"kept-" + string(content)}, nil
	}}

	h := newHarness(t, analyzer.Analyzer{Tagger: tagger}, fastConfig(1))
	now := time.Now()
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("b-%02d", i)
		h.src.put(ids[i], now)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.coord.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	enqueued := h.coord.Enqueue(nil, ingest.PriorityFIFO)
	h.sched.ExtendBatch(len(enqueued))
	h.sched.Start(ctx)

	// Let exactly 4 commit.
	for i := 0; i < 4; i++ {
		release <- struct{}{}
	}
	for processed.Load() < 4 {
		time.Sleep(time.Millisecond)
	}
	// Wait for the worker to claim the fifth before cancelling.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		counts := h.idx.CountsByState()
		if counts[library.StateProcessing] == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	removed := h.coord.Cancel(ids)
	h.sched.SettleExternally(removed)
	release <- struct{}{} // let the in-flight item finish and be discarded

	select {
	case <-h.done:
	case <-ctx.Done():
		t.Fatal("batch did not settle after cancellation")
	}
	h.coord.Queue().Close()
	h.sched.Wait()

	committed := 0
	for _, id := range ids {
		item, ok := h.idx.Get(id)
		if !ok {
			t.Fatalf("%s missing", id)
		}
		switch item.State {
		case library.StateProcessed:
			committed++
			if !item.HasTag("kept-" + id) {
				t.Errorf("%s committed without its tag", id)
			}
		case library.StateUnprocessed:
			if len(item.Attributes.Tags) != 0 {
				t.Errorf("%s has attributes without a commit", id)
			}
		default:
			t.Errorf("%s in unexpected state %s", id, item.State)
		}
	}
	if committed != 4 {
		t.Errorf("%d items committed, want exactly 4", committed)
	}
	if h.sched.Progress() != 1.0 {
		t.Errorf("Progress = %v, want 1.0", h.sched.Progress())
	}
}

func TestProgressMonotonic(t *testing.T) {
	t.Parallel()

	tagger := &stubTagger{fn: func([]byte) ([]string, error) {
		time.Sleep(2 * time.Millisecond)
		return []string{"t"}, nil
	}}
	h := newHarness(t, analyzer.Analyzer{Tagger: tagger}, fastConfig(3))
	for i := 0; i < 20; i++ {
		h.src.put(fmt.Sprintf("p-%02d", i), time.Now())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.coord.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	enqueued := h.coord.Enqueue(nil, ingest.PriorityFIFO)
	h.sched.ExtendBatch(len(enqueued))

	stop := make(chan struct{})
	var violation atomic.Bool
	go func() {
		last := 0.0
		for {
			select {
			case <-stop:
				return
			default:
			}
			p := h.sched.Progress()
			if p < last {
				violation.Store(true)
				return
			}
			last = p
			time.Sleep(time.Millisecond)
		}
	}()

	h.sched.Start(ctx)
	select {
	case <-h.done:
	case <-ctx.Done():
		t.Fatal("batch did not complete")
	}
	close(stop)
	h.coord.Queue().Close()
	h.sched.Wait()

	if violation.Load() {
		t.Error("progress decreased during batch")
	}
	if h.sched.Progress() != 1.0 {
		t.Errorf("final progress = %v, want exactly 1.0", h.sched.Progress())
	}
}
