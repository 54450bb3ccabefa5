package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"media-library/internal/analyzer"
	"media-library/internal/index"
	"media-library/internal/ingest"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/metrics"
	"media-library/internal/source"
	"media-library/internal/workers"
)

const (
	defaultMaxAttempts       = 3
	defaultCapabilityTimeout = 30 * time.Second
	defaultInitialBackoff    = 100 * time.Millisecond
	defaultMaxBackoff        = 5 * time.Second
	maxWorkerCap             = 16
)

// Config controls the worker pool and retry policy.
type Config struct {
	// Workers is the pool size (0 = auto based on CPU).
	Workers int
	// MaxAttempts is the per-capability attempt ceiling.
	MaxAttempts int
	// CapabilityTimeout bounds one capability invocation; hitting it
	// counts as a transient failure.
	CapabilityTimeout time.Duration
	// InitialBackoff is the delay before the first retry; it doubles
	// per attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns sensible defaults. Analysis is I/O-bound, so
// the pool is sized at two workers per CPU, capped.
func DefaultConfig() Config {
	return Config{
		Workers:           workers.ForIO(maxWorkerCap),
		MaxAttempts:       defaultMaxAttempts,
		CapabilityTimeout: defaultCapabilityTimeout,
		InitialBackoff:    defaultInitialBackoff,
		MaxBackoff:        defaultMaxBackoff,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.CapabilityTimeout <= 0 {
		c.CapabilityTimeout = d.CapabilityTimeout
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	return c
}

// Scheduler is the analysis worker pool.
type Scheduler struct {
	cfg   Config
	idx   *index.Index
	src   source.AssetSource
	an    analyzer.Analyzer
	queue *ingest.Queue

	// Cancellation hooks, wired to the ingestion coordinator.
	isCanceled    func(id string) bool
	clearCanceled func(id string)

	// memoryGate blocks while the process is under memory pressure.
	memoryGate func() bool

	onBatchComplete func()
	onCorruption    func(error)

	// Batch progress. done only ever increments within a batch; both
	// reset together when a new batch begins on an idle scheduler.
	batchMu    sync.Mutex
	batchTotal atomic.Int64
	batchDone  atomic.Int64

	wg sync.WaitGroup
}

// New creates a scheduler draining queue into idx.
func New(cfg Config, idx *index.Index, src source.AssetSource, an analyzer.Analyzer, queue *ingest.Queue) *Scheduler {
	return &Scheduler{
		cfg:           cfg.withDefaults(),
		idx:           idx,
		src:           src,
		an:            an,
		queue:         queue,
		isCanceled:    func(string) bool { return false },
		clearCanceled: func(string) {},
		memoryGate:    func() bool { return true },
	}
}

// SetCancellation wires the coordinator's in-flight cancellation flags.
func (s *Scheduler) SetCancellation(isCanceled func(string) bool, clear func(string)) {
	if isCanceled != nil {
		s.isCanceled = isCanceled
	}
	if clear != nil {
		s.clearCanceled = clear
	}
}

// SetMemoryGate registers a gate called before each item is claimed.
// The gate blocks while memory pressure is critical; analyzing an item
// loads its full content, the largest allocations in the process.
func (s *Scheduler) SetMemoryGate(gate func() bool) {
	if gate != nil {
		s.memoryGate = gate
	}
}

// SetOnBatchComplete registers a callback fired when the current batch
// reaches completion.
func (s *Scheduler) SetOnBatchComplete(fn func()) { s.onBatchComplete = fn }

// SetOnCorruption registers a callback fired when a commit detects an
// index consistency violation.
func (s *Scheduler) SetOnCorruption(fn func(error)) { s.onCorruption = fn }

// Start launches the worker pool. Workers exit when ctx is cancelled
// or the queue is closed; Wait blocks until they have all returned.
func (s *Scheduler) Start(ctx context.Context) {
	metrics.SchedulerWorkers.Set(float64(s.cfg.Workers))
	logging.Info("Starting %d analysis workers", s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// ExtendBatch accounts for n newly enqueued items. If the previous
// batch already completed, the counters reset first, so progress always
// refers to the current batch.
func (s *Scheduler) ExtendBatch(n int) {
	if n <= 0 {
		return
	}
	s.batchMu.Lock()
	if s.batchTotal.Load() > 0 && s.batchDone.Load() >= s.batchTotal.Load() {
		s.batchTotal.Store(0)
		s.batchDone.Store(0)
	}
	s.batchTotal.Add(int64(n))
	s.batchMu.Unlock()
	metrics.SchedulerBatchProgress.Set(s.Progress())
}

// SettleExternally accounts for items that reached a terminal outcome
// outside a worker (cancelled while still queued).
func (s *Scheduler) SettleExternally(n int) {
	for i := 0; i < n; i++ {
		s.settle()
	}
}

// Progress reports completed/total for the current batch, exactly 1.0
// once the batch completes. An idle scheduler reports 1.0.
func (s *Scheduler) Progress() float64 {
	total := s.batchTotal.Load()
	if total == 0 {
		return 1.0
	}
	done := s.batchDone.Load()
	if done >= total {
		return 1.0
	}
	return float64(done) / float64(total)
}

// settle records one terminal outcome and fires the batch-complete
// callback when the batch finishes.
func (s *Scheduler) settle() {
	done := s.batchDone.Add(1)
	total := s.batchTotal.Load()
	metrics.SchedulerBatchProgress.Set(s.Progress())
	if total > 0 && done == total {
		logging.Info("Analysis batch complete: %d items", total)
		if s.onBatchComplete != nil {
			s.onBatchComplete()
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	logging.Debug("Analysis worker %d started", id)

	for {
		s.memoryGate()

		entry, ok := s.queue.Pop(ctx)
		if !ok {
			logging.Debug("Analysis worker %d stopped", id)
			return
		}

		// Claiming Processing at dequeue is what makes processing
		// at-most-once per id.
		if !s.idx.TryMarkProcessing(entry.ID) {
			continue
		}
		s.process(ctx, entry.ID)
	}
}

// process runs every configured capability for one claimed item and
// lands exactly one terminal outcome.
func (s *Scheduler) process(ctx context.Context, id string) {
	start := time.Now()
	metrics.SchedulerInFlight.Inc()
	defer metrics.SchedulerInFlight.Dec()

	outcome := "processed"
	defer func() {
		metrics.SchedulerItemsTotal.WithLabelValues(outcome).Inc()
		metrics.SchedulerAnalysisDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		s.settle()
	}()

	item, ok := s.idx.Get(id)
	if !ok {
		outcome = "vanished"
		return
	}

	content, err := s.src.FetchContent(ctx, id)
	if err != nil {
		if errors.Is(err, library.ErrAssetUnavailable) {
			// Vanished mid-processing: drop silently, no retry.
			logging.Debug("Item %s vanished during analysis", id)
			s.idx.Remove(id)
			outcome = "vanished"
			return
		}
		logging.Warn("Content unreadable for %s: %v", id, err)
		if err := s.idx.MarkFailed(id); err != nil {
			logging.Error("Failed to mark %s failed: %v", id, err)
		}
		outcome = "failed"
		return
	}

	attrs, permanent := s.runCapabilities(ctx, content)

	if s.isCanceled(id) {
		// Computed but discarded: prior committed state stays intact.
		s.clearCanceled(id)
		if err := s.idx.RevertProcessing(id); err != nil {
			logging.Error("Failed to revert cancelled item %s: %v", id, err)
		}
		outcome = "cancelled"
		return
	}

	if permanent {
		if err := s.idx.MarkFailed(id); err != nil {
			logging.Error("Failed to mark %s failed: %v", id, err)
		}
		outcome = "failed"
		return
	}

	if err := s.idx.Commit(id, attrs, item.Fingerprint); err != nil {
		if errors.Is(err, library.ErrIndexCorrupt) {
			logging.Error("Index corruption on commit of %s: %v", id, err)
			if s.onCorruption != nil {
				s.onCorruption(err)
			}
		} else {
			logging.Error("Commit failed for %s: %v", id, err)
		}
		outcome = "failed"
		return
	}
}

// runCapabilities invokes every configured capability independently.
// It returns the merged attributes and whether a permanent failure
// occurred. An exhausted capability leaves its contribution absent
// without affecting the others.
func (s *Scheduler) runCapabilities(ctx context.Context, content []byte) (library.Attributes, bool) {
	var attrs library.Attributes
	permanent := false

	if s.an.Tagger != nil {
		err := s.runCapability(ctx, analyzer.CapabilityTags, func(ctx context.Context) error {
			tags, err := s.an.Tagger.Tags(ctx, content)
			if err == nil {
				attrs.Tags = tags
			}
			return err
		})
		permanent = permanent || library.IsPermanent(err)
	}

	if s.an.TextRecognizer != nil {
		err := s.runCapability(ctx, analyzer.CapabilityText, func(ctx context.Context) error {
			text, err := s.an.TextRecognizer.RecognizeText(ctx, content)
			if err == nil {
				attrs.DetectedText = text
			}
			return err
		})
		permanent = permanent || library.IsPermanent(err)
	}

	if s.an.FaceDetector != nil {
		err := s.runCapability(ctx, analyzer.CapabilityFaces, func(ctx context.Context) error {
			sigs, err := s.an.FaceDetector.DetectFaces(ctx, content)
			if err == nil {
				attrs.FaceClusters = s.idx.ResolveFaceSignatures(sigs)
			}
			return err
		})
		permanent = permanent || library.IsPermanent(err)
	}

	if s.an.Geocoder != nil {
		err := s.runCapability(ctx, analyzer.CapabilityLocation, func(ctx context.Context) error {
			loc, err := s.an.Geocoder.Locate(ctx, content)
			if err == nil {
				attrs.Location = loc
			}
			return err
		})
		permanent = permanent || library.IsPermanent(err)
	}

	return attrs, permanent
}

// runCapability executes one capability with timeout, classification
// and exponential backoff. It returns nil on success, the permanent
// error immediately on a structural failure, and the last transient
// error once the attempt ceiling is exhausted.
func (s *Scheduler) runCapability(ctx context.Context, cap analyzer.Capability, call func(context.Context) error) error {
	backoff := s.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.CapabilityTimeout)
		err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		if library.IsPermanent(err) {
			metrics.SchedulerCapabilityFailures.WithLabelValues(string(cap), "permanent").Inc()
			return err
		}

		// A deadline on the attempt context is a timeout, hence
		// transient; so is anything not explicitly permanent.
		lastErr = err

		if attempt < s.cfg.MaxAttempts {
			metrics.SchedulerCapabilityRetries.WithLabelValues(string(cap)).Inc()
			logging.Debug("Capability %s attempt %d/%d failed (%v), retrying in %v",
				cap, attempt, s.cfg.MaxAttempts, err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return lastErr
			}
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
		}
	}

	metrics.SchedulerCapabilityFailures.WithLabelValues(string(cap), "exhausted").Inc()
	logging.Warn("Capability %s exhausted %d attempts: %v", cap, s.cfg.MaxAttempts, lastErr)
	return lastErr
}
