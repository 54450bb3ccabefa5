package index

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"media-library/internal/library"
	"media-library/internal/metrics"
)

type idSet map[string]struct{}

type dateKey struct {
	ts int64
	id string
}

// entry is one item's slot in the index. entry.mu serializes state
// transitions and commits for this id; it is always acquired before the
// index-wide mutex, never the other way around.
type entry struct {
	mu      sync.Mutex
	item    library.MediaItem
	removed bool

	// lastTerminal is the state to restore when an in-flight analysis is
	// discarded; empty until the item first reaches a terminal state.
	lastTerminal library.ProcessingState

	// seq is the discovery order, used for FIFO queue priority.
	seq int64
}

// Index is the concurrent media metadata store.
type Index struct {
	mu      sync.RWMutex
	items   map[string]*entry
	tags    map[string]idSet
	tokens  map[string]idSet
	kinds   map[library.MediaKind]idSet
	byDate  []dateKey // sorted by (ts, id)
	version atomic.Int64
	nextSeq atomic.Int64

	// Face cluster registry, guarded by mu.
	clusters   map[string]*library.FaceCluster
	signatures map[string]string // face signature -> cluster id
}

// New creates an empty index.
func New() *Index {
	return &Index{
		items:      make(map[string]*entry),
		tags:       make(map[string]idSet),
		tokens:     make(map[string]idSet),
		kinds:      make(map[library.MediaKind]idSet),
		clusters:   make(map[string]*library.FaceCluster),
		signatures: make(map[string]string),
	}
}

// bump advances the version stamp after an index-visible mutation.
func (x *Index) bump() int64 {
	v := x.version.Add(1)
	metrics.IndexVersion.Set(float64(v))
	return v
}

// Version returns the current version stamp. It increases monotonically
// with every index-visible mutation, so collection and range scans can
// snapshot against it.
func (x *Index) Version() int64 {
	return x.version.Load()
}

// lookup returns the live entry for id, or nil.
func (x *Index) lookup(id string) *entry {
	x.mu.RLock()
	e := x.items[id]
	x.mu.RUnlock()
	return e
}

// Add inserts a new item. If the item arrives with a terminal state and
// committed attributes (snapshot restore), its inverted entries are
// inserted as well; items in Queued or Processing are normalized to
// Unprocessed since no analysis survives a restart.
func (x *Index) Add(item library.MediaItem) error {
	if item.ID == "" {
		return fmt.Errorf("item id must not be empty")
	}
	item.Attributes = item.Attributes.Normalize()
	if !item.State.Terminal() {
		item.State = library.StateUnprocessed
		item.Attributes = library.Attributes{}
		item.AnalyzedFingerprint = ""
	}

	e := &entry{item: item, seq: x.nextSeq.Add(1)}
	if item.State.Terminal() {
		e.lastTerminal = item.State
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.items[item.ID]; exists {
		return fmt.Errorf("item %s already indexed", item.ID)
	}
	x.items[item.ID] = e
	x.insertDateLocked(item.ID, item.CreatedAt)
	addToSet(x.kinds, item.Kind, item.ID)
	if item.State.Terminal() {
		x.insertAttrEntriesLocked(item.ID, item.Attributes)
		x.registerClustersLocked(item.ID, item.Attributes.FaceClusters)
	}
	x.bump()
	return nil
}

// Remove deletes an item and every inverted entry it contributes.
func (x *Index) Remove(id string) bool {
	e := x.lookup(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	e.removed = true

	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.items, id)
	x.removeDateLocked(id, e.item.CreatedAt)
	removeFromSet(x.kinds, e.item.Kind, id)
	x.removeAttrEntriesLocked(id, e.item.Attributes)
	x.unregisterClustersLocked(id, e.item.Attributes.FaceClusters)
	x.bump()
	return true
}

// Get returns a copy of the item's current metadata.
func (x *Index) Get(id string) (library.MediaItem, bool) {
	e := x.lookup(id)
	if e == nil {
		return library.MediaItem{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return library.MediaItem{}, false
	}
	return e.item, true
}

// Seq returns the discovery order of an item, for FIFO scheduling.
func (x *Index) Seq(id string) (int64, bool) {
	e := x.lookup(id)
	if e == nil {
		return 0, false
	}
	return e.seq, true
}

// Items returns a point-in-time copy of every item.
func (x *Index) Items() []library.MediaItem {
	x.mu.RLock()
	entries := make([]*entry, 0, len(x.items))
	for _, e := range x.items {
		entries = append(entries, e)
	}
	x.mu.RUnlock()

	items := make([]library.MediaItem, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			items = append(items, e.item)
		}
		e.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// MarkQueued transitions an item to Queued, enforcing the state
// machine: only Unprocessed items and terminal items (explicit
// re-analyze) may be queued. Items already Queued or Processing are
// never re-enqueued; callers treat the returned transition error for
// those states as "skip".
func (x *Index) MarkQueued(id string) error {
	e := x.lookup(id)
	if e == nil {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	if !e.item.State.CanTransition(library.StateQueued) {
		return &library.StateTransitionError{ID: id, From: e.item.State, To: library.StateQueued}
	}
	e.item.State = library.StateQueued
	return nil
}

// TryMarkProcessing atomically claims an item for analysis. It succeeds
// only for the single caller that observes the item in Queued state,
// which is what guarantees at-most-one worker per id.
func (x *Index) TryMarkProcessing(id string) bool {
	e := x.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.item.State != library.StateQueued {
		return false
	}
	e.item.State = library.StateProcessing
	return true
}

// RevertProcessing returns an in-flight item to its pre-analysis state:
// the last terminal state if it has one, otherwise Unprocessed. Used when
// a cancelled or abandoned analysis result is discarded; the item's
// committed attributes and index entries are left untouched.
func (x *Index) RevertProcessing(id string) error {
	e := x.lookup(id)
	if e == nil {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.item.State != library.StateProcessing {
		return &library.StateTransitionError{ID: id, From: e.item.State, To: library.StateUnprocessed}
	}
	if e.lastTerminal != "" {
		e.item.State = e.lastTerminal
	} else {
		e.item.State = library.StateUnprocessed
	}
	return nil
}

// RevertQueued returns a not-yet-started item from Queued to its
// pre-queue state. Used when a queued item is cancelled before any
// worker claims it.
func (x *Index) RevertQueued(id string) error {
	e := x.lookup(id)
	if e == nil {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.item.State != library.StateQueued {
		return &library.StateTransitionError{ID: id, From: e.item.State, To: library.StateUnprocessed}
	}
	if e.lastTerminal != "" {
		e.item.State = e.lastTerminal
	} else {
		e.item.State = library.StateUnprocessed
	}
	return nil
}

// ResetForReanalysis records a changed content fingerprint and returns
// the item to Unprocessed so the coordinator re-enqueues it. The
// previously committed attributes and their index entries are retained
// until the re-analysis commits, so search stays available during the
// rescan. Only valid for items not currently queued or in flight.
func (x *Index) ResetForReanalysis(id, fingerprint string) error {
	e := x.lookup(id)
	if e == nil {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	if e.item.State == library.StateQueued || e.item.State == library.StateProcessing {
		return &library.StateTransitionError{ID: id, From: e.item.State, To: library.StateUnprocessed}
	}
	e.item.Fingerprint = fingerprint
	e.item.State = library.StateUnprocessed
	x.mu.Lock()
	x.bump()
	x.mu.Unlock()
	return nil
}

// Commit atomically replaces the item's derived attributes and swaps
// its contribution to every inverted index. The item must be in
// Processing state; a second commit for the same analyzed fingerprint
// is an internal consistency violation and returns ErrIndexCorrupt.
func (x *Index) Commit(id string, attrs library.Attributes, analyzedFingerprint string) error {
	e := x.lookup(id)
	if e == nil {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	if e.item.State != library.StateProcessing {
		if e.item.State.Terminal() && e.item.AnalyzedFingerprint == analyzedFingerprint && analyzedFingerprint != "" {
			return fmt.Errorf("%w: duplicate commit for %s", library.ErrIndexCorrupt, id)
		}
		return &library.StateTransitionError{ID: id, From: e.item.State, To: library.StateProcessed}
	}

	attrs = attrs.Normalize()

	x.mu.Lock()
	x.removeAttrEntriesLocked(id, e.item.Attributes)
	x.unregisterClustersLocked(id, e.item.Attributes.FaceClusters)
	x.insertAttrEntriesLocked(id, attrs)
	x.registerClustersLocked(id, attrs.FaceClusters)

	e.item.Attributes = attrs
	e.item.State = library.StateProcessed
	e.item.AnalyzedFingerprint = analyzedFingerprint
	e.lastTerminal = library.StateProcessed

	err := x.verifyItemLocked(id, e.item)
	x.bump()
	x.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %v", library.ErrIndexCorrupt, err)
	}
	metrics.IndexCommitsTotal.Inc()
	return nil
}

// MarkFailed records a structural analysis failure. The item keeps
// whatever entries its last successful commit produced, so it stays
// listable and searchable by prior attributes.
func (x *Index) MarkFailed(id string) error {
	e := x.lookup(id)
	if e == nil {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	if e.item.State != library.StateProcessing {
		return &library.StateTransitionError{ID: id, From: e.item.State, To: library.StateFailed}
	}
	e.item.State = library.StateFailed
	e.lastTerminal = library.StateFailed

	x.mu.Lock()
	x.bump()
	x.mu.Unlock()
	return nil
}

// ToggleFavorite flips an item's favorite flag. This is a direct user
// edit, independent of analysis state, and is index-visible
// immediately.
func (x *Index) ToggleFavorite(id string) (bool, error) {
	e := x.lookup(id)
	if e == nil {
		return false, fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false, fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	e.item.IsFavorite = !e.item.IsFavorite

	x.mu.Lock()
	x.bump()
	x.mu.Unlock()
	return e.item.IsFavorite, nil
}

// LookupByTag returns the ids of items carrying the given tag, sorted.
func (x *Index) LookupByTag(tag string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedIDs(x.tags[normalizeKey(tag)])
}

// LookupByToken returns the ids of items whose detected text or
// location contains the given token, sorted.
func (x *Index) LookupByToken(token string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedIDs(x.tokens[normalizeKey(token)])
}

// LookupByKind returns the ids of items of the given media kind, sorted.
func (x *Index) LookupByKind(kind library.MediaKind) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedIDs(x.kinds[kind])
}

// RangeByDate returns the ids of items whose creation timestamp falls
// within [from, to], in ascending (date, id) order.
func (x *Index) RangeByDate(from, to time.Time) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	lo := sort.Search(len(x.byDate), func(i int) bool {
		return x.byDate[i].ts >= from.Unix()
	})
	var ids []string
	for i := lo; i < len(x.byDate) && x.byDate[i].ts <= to.Unix(); i++ {
		ids = append(ids, x.byDate[i].id)
	}
	return ids
}

// CountsByState returns the number of items per processing state.
func (x *Index) CountsByState() map[library.ProcessingState]int {
	counts := make(map[library.ProcessingState]int)
	for _, item := range x.Items() {
		counts[item.State]++
	}
	return counts
}

// RebuildFrom discards the entire index contents and reloads from the
// given item records. This is the recovery path after ErrIndexCorrupt.
func (x *Index) RebuildFrom(items []library.MediaItem) error {
	x.mu.Lock()
	x.items = make(map[string]*entry)
	x.tags = make(map[string]idSet)
	x.tokens = make(map[string]idSet)
	x.kinds = make(map[library.MediaKind]idSet)
	x.byDate = nil
	x.clusters = make(map[string]*library.FaceCluster)
	x.signatures = make(map[string]string)
	x.mu.Unlock()

	for _, item := range items {
		if err := x.Add(item); err != nil {
			return fmt.Errorf("rebuild failed at %s: %w", item.ID, err)
		}
	}
	metrics.IndexRebuildsTotal.Inc()
	return nil
}

// Verify checks that the item's inverted entries exactly match its
// committed attributes.
func (x *Index) Verify(id string) error {
	item, ok := x.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", library.ErrUnknownItem, id)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.verifyItemLocked(id, item)
}

// verifyItemLocked cross-checks one item's index entries against its
// attributes. Caller holds x.mu (read or write).
func (x *Index) verifyItemLocked(id string, item library.MediaItem) error {
	for _, tag := range item.Attributes.Tags {
		if _, ok := x.tags[tag][id]; !ok {
			return fmt.Errorf("missing tag entry %q for %s", tag, id)
		}
	}
	for tag, set := range x.tags {
		_, present := set[id]
		if present && !hasString(item.Attributes.Tags, tag) {
			return fmt.Errorf("stale tag entry %q for %s", tag, id)
		}
	}
	wantTokens := attrTokens(item.Attributes)
	for _, tok := range wantTokens {
		if _, ok := x.tokens[tok][id]; !ok {
			return fmt.Errorf("missing token entry %q for %s", tok, id)
		}
	}
	for tok, set := range x.tokens {
		_, present := set[id]
		if present && !hasString(wantTokens, tok) {
			return fmt.Errorf("stale token entry %q for %s", tok, id)
		}
	}
	return nil
}

// insertAttrEntriesLocked adds the item's contribution to the tag and
// token indices. Caller holds x.mu for writing.
func (x *Index) insertAttrEntriesLocked(id string, attrs library.Attributes) {
	for _, tag := range attrs.Tags {
		addToSet(x.tags, tag, id)
	}
	for _, tok := range attrTokens(attrs) {
		addToSet(x.tokens, tok, id)
	}
}

// removeAttrEntriesLocked removes the item's contribution from the tag
// and token indices. Caller holds x.mu for writing.
func (x *Index) removeAttrEntriesLocked(id string, attrs library.Attributes) {
	for _, tag := range attrs.Tags {
		removeFromSet(x.tags, tag, id)
	}
	for _, tok := range attrTokens(attrs) {
		removeFromSet(x.tokens, tok, id)
	}
}

func (x *Index) insertDateLocked(id string, createdAt time.Time) {
	key := dateKey{ts: createdAt.Unix(), id: id}
	i := sort.Search(len(x.byDate), func(i int) bool {
		if x.byDate[i].ts != key.ts {
			return x.byDate[i].ts > key.ts
		}
		return x.byDate[i].id >= key.id
	})
	x.byDate = append(x.byDate, dateKey{})
	copy(x.byDate[i+1:], x.byDate[i:])
	x.byDate[i] = key
}

func (x *Index) removeDateLocked(id string, createdAt time.Time) {
	ts := createdAt.Unix()
	i := sort.Search(len(x.byDate), func(i int) bool {
		if x.byDate[i].ts != ts {
			return x.byDate[i].ts > ts
		}
		return x.byDate[i].id >= id
	})
	if i < len(x.byDate) && x.byDate[i].ts == ts && x.byDate[i].id == id {
		x.byDate = append(x.byDate[:i], x.byDate[i+1:]...)
	}
}

// attrTokens derives the token index entries from detected text and
// location via case-insensitive whitespace tokenization, deduplicated.
func attrTokens(attrs library.Attributes) []string {
	toks := library.Tokenize(attrs.DetectedText + " " + attrs.Location)
	if len(toks) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(toks))
	out := toks[:0]
	for _, t := range toks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeKey(key string) string {
	toks := library.Tokenize(key)
	if len(toks) == 0 {
		return ""
	}
	return toks[0]
}

func hasString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func addToSet[K comparable](m map[K]idSet, key K, id string) {
	set, ok := m[key]
	if !ok {
		set = make(idSet)
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFromSet[K comparable](m map[K]idSet, key K, id string) {
	if set, ok := m[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func sortedIDs(set idSet) []string {
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
