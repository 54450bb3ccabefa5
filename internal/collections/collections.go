package collections

import (
	"sort"
	"sync"

	"media-library/internal/index"
	"media-library/internal/library"
	"media-library/internal/metrics"
)

// Collection is one materialized smart collection.
type Collection struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Members []string `json:"members"`
}

// definition pairs a collection name with its membership predicate.
// Attribute-based predicates see only successfully analyzed items;
// Favorites is a direct user flag and ignores analysis state.
type definition struct {
	name      string
	anyState  bool
	predicate func(library.MediaItem) bool
}

// definitions is the fixed, ordered collection list.
var definitions = []definition{
	{name: "Beach & Vacation", predicate: func(it library.MediaItem) bool {
		return it.HasTag("beach") || it.HasTag("vacation")
	}},
	{name: "Family & Friends", predicate: func(it library.MediaItem) bool {
		return len(it.Attributes.FaceClusters) > 0
	}},
	{name: "Nature & Landscapes", predicate: func(it library.MediaItem) bool {
		return it.HasTag("nature") || it.HasTag("landscape")
	}},
	{name: "Food & Dining", predicate: func(it library.MediaItem) bool {
		return it.HasTag("food")
	}},
	{name: "Screenshots & Documents", predicate: func(it library.MediaItem) bool {
		return it.Attributes.DetectedText != ""
	}},
	{name: "Favorites", anyState: true, predicate: func(it library.MediaItem) bool {
		return it.IsFavorite
	}},
}

// Materializer caches collection memberships and recomputes them on
// demand against a point-in-time snapshot of the index.
type Materializer struct {
	idx *index.Index

	mu      sync.RWMutex
	cached  []Collection
	version int64
}

func NewMaterializer(idx *index.Index) *Materializer {
	m := &Materializer{idx: idx}
	m.Recompute()
	return m
}

// Recompute re-evaluates every predicate and swaps the cached
// membership sets. It is idempotent: if the index version has not
// moved since the last run, the cache is left untouched.
func (m *Materializer) Recompute() {
	version := m.idx.Version()

	m.mu.RLock()
	current := m.version
	primed := m.cached != nil
	m.mu.RUnlock()
	if primed && current == version {
		return
	}

	items := m.idx.Items()
	fresh := make([]Collection, len(definitions))
	for i, def := range definitions {
		var members []string
		for _, it := range items {
			if !def.anyState && it.State != library.StateProcessed {
				continue
			}
			if def.predicate(it) {
				members = append(members, it.ID)
			}
		}
		sort.Strings(members)
		fresh[i] = Collection{Name: def.name, Count: len(members), Members: members}
		metrics.CollectionMembers.WithLabelValues(def.name).Set(float64(len(members)))
	}

	m.mu.Lock()
	// A concurrent recompute may have cached a newer snapshot.
	if !(m.cached != nil && m.version > version) {
		m.cached = fresh
		m.version = version
	}
	m.mu.Unlock()
	metrics.CollectionRecomputesTotal.Inc()
}

// List returns the cached collections in their fixed order.
func (m *Materializer) List() []Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Collection, len(m.cached))
	copy(out, m.cached)
	return out
}

// Get returns one collection by name.
func (m *Materializer) Get(name string) (Collection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cached {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// Version reports the index version the cache was computed against.
func (m *Materializer) Version() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}
