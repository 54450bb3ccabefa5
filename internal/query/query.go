package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"media-library/internal/index"
	"media-library/internal/library"
	"media-library/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// DateRange bounds matching creation timestamps, inclusive on both ends.
type DateRange struct {
	From time.Time
	To   time.Time
}

// FilterSet narrows search results. Zero values mean unconstrained:
// a nil Dates applies no date filter and KindAny applies no kind
// filter. Filters combine with AND; the free-text tokens combine
// with OR across an item's fields.
type FilterSet struct {
	Dates    *DateRange
	Kind     library.MediaKind
	Location string
	Tags     []string
}

func (f FilterSet) validate() error {
	if f.Dates != nil && f.Dates.From.After(f.Dates.To) {
		return fmt.Errorf("%w: date range from %s after to %s",
			library.ErrMalformedQuery, f.Dates.From.Format(time.RFC3339), f.Dates.To.Format(time.RFC3339))
	}
	switch f.Kind {
	case "", library.KindAny, library.KindPhoto, library.KindVideo:
	default:
		return fmt.Errorf("%w: unknown media kind %q", library.ErrMalformedQuery, f.Kind)
	}
	return nil
}

// Engine evaluates searches against a snapshot of the index. It holds
// no locks across evaluation, so searches never stall commits.
type Engine struct {
	idx *index.Index
}

func NewEngine(idx *index.Index) *Engine {
	return &Engine{idx: idx}
}

// Search returns item ids ranked by the number of distinct query
// tokens each item matched, then by creation time (newest first),
// then by id. Empty text yields an empty result by policy: browsing
// the whole library is not a search.
func (e *Engine) Search(text string, filters FilterSet) ([]string, error) {
	timer := prometheus.NewTimer(metrics.QueryDuration)
	defer timer.ObserveDuration()

	// Empty text wins over filter validation: no tokens means an empty
	// result regardless of what the filters look like.
	tokens := library.Tokenize(text)
	if len(tokens) == 0 {
		metrics.QueryResults.Observe(0)
		return []string{}, nil
	}
	tokens = distinct(tokens)

	if err := filters.validate(); err != nil {
		return nil, err
	}

	type match struct {
		id      string
		count   int
		created time.Time
	}

	var matches []match
	for _, item := range e.candidates(filters) {
		if !filters.accept(item) {
			continue
		}
		n := matchCount(item, tokens)
		if n == 0 {
			continue
		}
		matches = append(matches, match{id: item.ID, count: n, created: item.CreatedAt})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].count != matches[j].count {
			return matches[i].count > matches[j].count
		}
		if !matches[i].created.Equal(matches[j].created) {
			return matches[i].created.After(matches[j].created)
		}
		return matches[i].id < matches[j].id
	})

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	metrics.QueryResults.Observe(float64(len(ids)))
	return ids, nil
}

// candidates narrows the scan through the inverted indices when a
// filter permits it. A tag filter is exact, so LookupByTag yields the
// precise candidate set; dates and kind yield supersets that accept
// trims. Free-text tokens match by substring and cannot seed from the
// token index, so an unfiltered search still walks every item.
func (e *Engine) candidates(filters FilterSet) []library.MediaItem {
	var ids []string
	switch {
	case len(filters.Tags) > 0:
		ids = e.idx.LookupByTag(filters.Tags[0])
	case filters.Dates != nil:
		ids = e.idx.RangeByDate(filters.Dates.From, filters.Dates.To)
	case filters.Kind != "" && filters.Kind != library.KindAny:
		ids = e.idx.LookupByKind(filters.Kind)
	default:
		return e.idx.Items()
	}
	items := make([]library.MediaItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := e.idx.Get(id); ok {
			items = append(items, item)
		}
	}
	return items
}

func (f FilterSet) accept(item library.MediaItem) bool {
	if f.Dates != nil {
		if item.CreatedAt.Before(f.Dates.From) || item.CreatedAt.After(f.Dates.To) {
			return false
		}
	}
	if f.Kind != "" && f.Kind != library.KindAny && item.Kind != f.Kind {
		return false
	}
	if f.Location != "" &&
		!strings.Contains(strings.ToLower(item.Attributes.Location), strings.ToLower(f.Location)) {
		return false
	}
	for _, tag := range f.Tags {
		if !item.HasTag(strings.ToLower(tag)) {
			return false
		}
	}
	return true
}

// matchCount reports how many of the query tokens hit any field of
// the item: exact membership for tags, substring for detected text
// and location.
func matchCount(item library.MediaItem, tokens []string) int {
	text := strings.ToLower(item.Attributes.DetectedText)
	loc := strings.ToLower(item.Attributes.Location)
	n := 0
	for _, tok := range tokens {
		if item.HasTag(tok) ||
			(text != "" && strings.Contains(text, tok)) ||
			(loc != "" && strings.Contains(loc, tok)) {
			n++
		}
	}
	return n
}

func distinct(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
