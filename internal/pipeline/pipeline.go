package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"media-library/internal/analyzer"
	"media-library/internal/collections"
	"media-library/internal/index"
	"media-library/internal/ingest"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/memory"
	"media-library/internal/query"
	"media-library/internal/scheduler"
	"media-library/internal/snapshot"
	"media-library/internal/source"
	"media-library/internal/voice"
)

// Config controls pipeline behavior.
type Config struct {
	Scheduler    scheduler.Config
	SyncInterval time.Duration // 0 disables the periodic sync loop
	PriorityMode ingest.PriorityMode

	// Memory, when set, pauses analysis under memory pressure. The
	// caller owns the monitor's lifecycle.
	Memory *memory.Monitor
}

// Stats is a point-in-time pipeline status report.
type Stats struct {
	Items        map[string]int `json:"items_by_state"`
	QueueDepth   int            `json:"queue_depth"`
	Paused       bool           `json:"paused"`
	Progress     float64        `json:"progress"`
	IndexVersion int64          `json:"index_version"`
}

// Pipeline is the composition root: it owns all pipeline state and is
// the only path through which external consumers reach it.
type Pipeline struct {
	cfg   Config
	idx   *index.Index
	src   source.AssetSource
	store *snapshot.Store // nil disables persistence

	queue  *ingest.Queue
	coord  *ingest.Coordinator
	sched  *scheduler.Scheduler
	coll   *collections.Materializer
	engine *query.Engine
	voice  *voice.Adapter

	events *broadcaster

	rebuildMu sync.Mutex

	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New assembles a pipeline. If store is non-nil, the persisted
// snapshot is loaded and the index rebuilt from it before the first
// sync reconciles it against the source.
func New(ctx context.Context, cfg Config, src source.AssetSource, an analyzer.Analyzer, store *snapshot.Store) (*Pipeline, error) {
	idx := index.New()

	if store != nil {
		items, version, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		if len(items) > 0 {
			if err := idx.RebuildFrom(items); err != nil {
				return nil, fmt.Errorf("failed to rebuild index from snapshot: %w", err)
			}
			logging.Info("Index restored from snapshot: %d items (saved at version %d)", len(items), version)
		}
	}

	queue := ingest.NewQueue(cfg.PriorityMode)
	coord := ingest.NewCoordinator(idx, src, queue)
	sched := scheduler.New(cfg.Scheduler, idx, src, an, queue)
	sched.SetCancellation(coord.IsCanceled, coord.ClearCanceled)
	if cfg.Memory != nil {
		sched.SetMemoryGate(cfg.Memory.WaitIfPaused)
	}

	p := &Pipeline{
		cfg:    cfg,
		idx:    idx,
		src:    src,
		store:  store,
		queue:  queue,
		coord:  coord,
		sched:  sched,
		coll:   collections.NewMaterializer(idx),
		events: newBroadcaster(),
	}
	p.engine = query.NewEngine(idx)
	p.voice = voice.NewAdapter(p.engine.Search)
	sched.SetOnBatchComplete(p.onBatchComplete)
	sched.SetOnCorruption(p.onCorruption)
	return p, nil
}

// Start launches the workers, runs an initial sync and, if configured,
// a periodic sync loop. Each sync enqueues whatever it left
// Unprocessed.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("pipeline already started")
	}
	p.started = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	p.sched.Start(runCtx)

	if _, err := p.Sync(runCtx); err != nil {
		logging.Error("Initial sync failed: %v", err)
	}
	p.Enqueue(nil)

	if p.cfg.SyncInterval > 0 {
		p.loopWG.Add(1)
		go p.syncLoop(runCtx)
	}
	return nil
}

func (p *Pipeline) syncLoop(ctx context.Context) {
	defer p.loopWG.Done()
	ticker := time.NewTicker(p.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sync(ctx); err != nil {
				logging.Error("Periodic sync failed: %v", err)
				continue
			}
			p.Enqueue(nil)
		}
	}
}

// Stop shuts the pipeline down: workers drain, the sync loop exits,
// and a final snapshot is flushed.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.queue.Close()
	p.sched.Wait()
	p.loopWG.Wait()
	p.flushSnapshot()
	logging.Info("Pipeline stopped")
}

// Sync reconciles the index against the asset source.
func (p *Pipeline) Sync(ctx context.Context) (ingest.SyncStats, error) {
	stats, err := p.coord.Sync(ctx)
	if err != nil {
		return stats, err
	}
	if stats.Added+stats.Changed+stats.Removed > 0 {
		p.coll.Recompute()
		p.events.publish(Event{Type: EventCollectionsUpdated})
	}
	p.events.publish(Event{
		Type:   EventSyncComplete,
		Detail: fmt.Sprintf("%d added, %d changed, %d removed", stats.Added, stats.Changed, stats.Removed),
	})
	return stats, nil
}

// Enqueue admits items into the analysis batch and returns the ids
// actually admitted. A nil slice admits every Unprocessed item.
func (p *Pipeline) Enqueue(ids []string) []string {
	enqueued := p.coord.Enqueue(ids, p.cfg.PriorityMode)
	p.sched.ExtendBatch(len(enqueued))
	return enqueued
}

// Cancel withdraws items from analysis: queued items leave the batch,
// in-flight items finish but their results are discarded.
func (p *Pipeline) Cancel(ids []string) int {
	removed := p.coord.Cancel(ids)
	p.sched.SettleExternally(removed)
	return removed
}

// Pause suspends work delivery; in-flight items run to completion.
func (p *Pipeline) Pause() { p.coord.Pause() }

// Resume restarts work delivery after Pause.
func (p *Pipeline) Resume() { p.coord.Resume() }

// Progress reports batch completion in [0, 1].
func (p *Pipeline) Progress() float64 { return p.sched.Progress() }

// Search evaluates a free-text query with filters.
func (p *Pipeline) Search(text string, filters query.FilterSet) ([]string, error) {
	return p.engine.Search(text, filters)
}

// Collections returns the materialized smart collections.
func (p *Pipeline) Collections() []collections.Collection { return p.coll.List() }

// RefreshCollections recomputes collection memberships on demand.
func (p *Pipeline) RefreshCollections() []collections.Collection {
	p.coll.Recompute()
	p.events.publish(Event{Type: EventCollectionsUpdated})
	return p.coll.List()
}

// Item returns one item by id.
func (p *Pipeline) Item(id string) (library.MediaItem, bool) { return p.idx.Get(id) }

// ToggleFavorite flips an item's favorite flag and returns the new
// value. Favorites are index-visible immediately, independent of
// analysis state.
func (p *Pipeline) ToggleFavorite(id string) (bool, error) {
	fav, err := p.idx.ToggleFavorite(id)
	if err != nil {
		return false, err
	}
	p.coll.Recompute()
	p.events.publish(Event{Type: EventFavoriteToggled, Detail: id})
	return fav, nil
}

// FaceClusters lists the known face clusters.
func (p *Pipeline) FaceClusters() []library.FaceCluster { return p.idx.FaceClusters() }

// LabelFaceCluster names a face cluster.
func (p *Pipeline) LabelFaceCluster(clusterID, label string) error {
	return p.idx.LabelCluster(clusterID, label)
}

// MergeFaceClusters folds cluster src into dst.
func (p *Pipeline) MergeFaceClusters(dst, src string) error {
	if err := p.idx.MergeClusters(dst, src); err != nil {
		return err
	}
	p.coll.Recompute()
	p.events.publish(Event{Type: EventCollectionsUpdated})
	return nil
}

// Voice returns the voice query adapter.
func (p *Pipeline) Voice() *voice.Adapter { return p.voice }

// Events subscribes to pipeline change notifications. The returned
// func unsubscribes.
func (p *Pipeline) Events() (<-chan Event, func()) { return p.events.subscribe() }

// Stats reports current pipeline status.
func (p *Pipeline) Stats() Stats {
	counts := p.idx.CountsByState()
	byState := make(map[string]int, len(counts))
	for state, n := range counts {
		byState[string(state)] = n
	}
	return Stats{
		Items:        byState,
		QueueDepth:   p.queue.Len(),
		Paused:       p.queue.Paused(),
		Progress:     p.sched.Progress(),
		IndexVersion: p.idx.Version(),
	}
}

// onBatchComplete runs when every admitted item has settled.
func (p *Pipeline) onBatchComplete() {
	logging.Info("Analysis batch complete")
	p.coll.Recompute()
	p.flushSnapshot()
	p.events.publish(Event{Type: EventBatchComplete})
	p.events.publish(Event{Type: EventCollectionsUpdated})
}

// onCorruption rebuilds the index from the persisted snapshot plus a
// fresh source sync. Corruption is the only condition that warrants a
// full rebuild; everything else degrades per item.
func (p *Pipeline) onCorruption(cause error) {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()
	logging.Error("Index corruption detected, rebuilding: %v", cause)

	ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFn()

	items := p.idx.Items()
	if p.store != nil {
		if stored, _, err := p.store.Load(ctx); err == nil && len(stored) > 0 {
			items = stored
		} else if err != nil {
			logging.Error("Snapshot load during rebuild failed, using in-memory items: %v", err)
		}
	}
	if err := p.idx.RebuildFrom(items); err != nil {
		logging.Error("Index rebuild failed: %v", err)
		return
	}
	if _, err := p.coord.Sync(ctx); err != nil {
		logging.Error("Post-rebuild sync failed: %v", err)
	}
	p.coll.Recompute()
	p.events.publish(Event{Type: EventIndexRebuilt})
	logging.Info("Index rebuilt from snapshot and source")
}

// flushSnapshot persists the current catalog.
func (p *Pipeline) flushSnapshot() {
	if p.store == nil {
		return
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFn()
	if err := p.store.Save(ctx, p.idx.Items(), p.idx.Version()); err != nil {
		logging.Error("Snapshot save failed: %v", err)
	}
}
