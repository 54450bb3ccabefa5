package library

import (
	"sort"
	"strings"
	"time"
)

// MediaKind identifies the kind of a media item.
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"

	// KindAny is only valid in filters and means "no kind constraint".
	// It never appears on a stored item.
	KindAny MediaKind = "any"
)

// ProcessingState tracks where an item is in the analysis pipeline.
type ProcessingState string

const (
	StateUnprocessed ProcessingState = "unprocessed"
	StateQueued      ProcessingState = "queued"
	StateProcessing  ProcessingState = "processing"
	StateProcessed   ProcessingState = "processed"
	StateFailed      ProcessingState = "failed"
)

// CanTransition reports whether the edge s -> to is a legal state
// machine transition. The only legal edges are
// Unprocessed->Queued->Processing->{Processed,Failed}, plus the explicit
// re-analyze edge {Processed,Failed}->Queued.
func (s ProcessingState) CanTransition(to ProcessingState) bool {
	switch s {
	case StateUnprocessed:
		return to == StateQueued
	case StateQueued:
		return to == StateProcessing
	case StateProcessing:
		return to == StateProcessed || to == StateFailed
	case StateProcessed, StateFailed:
		return to == StateQueued
	default:
		return false
	}
}

// Terminal reports whether the state is a terminal analysis outcome.
func (s ProcessingState) Terminal() bool {
	return s == StateProcessed || s == StateFailed
}

// Attributes holds the fields derived by analysis. A successful commit
// replaces an item's attributes wholesale; there is no partial or
// additive merge.
type Attributes struct {
	Tags         []string `json:"tags,omitempty"`
	DetectedText string   `json:"detectedText,omitempty"`
	FaceClusters []string `json:"faceClusters,omitempty"`
	Location     string   `json:"location,omitempty"`
}

// Normalize trims, lowercases and deduplicates tags and cluster ids so
// that attribute comparison and index bookkeeping are deterministic.
func (a Attributes) Normalize() Attributes {
	a.Tags = normalizeSet(a.Tags, true)
	a.FaceClusters = normalizeSet(a.FaceClusters, false)
	a.DetectedText = strings.TrimSpace(a.DetectedText)
	a.Location = strings.TrimSpace(a.Location)
	return a
}

func normalizeSet(values []string, lower bool) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// MediaItem is the metadata record for one library item. ID is immutable
// for the life of the item; Fingerprint changes force re-analysis.
// Attributes are only written by a successful analysis commit; IsFavorite
// is the one field a user edit may touch directly.
type MediaItem struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"createdAt"`
	Kind        MediaKind `json:"kind"`

	Attributes Attributes `json:"attributes"`
	IsFavorite bool       `json:"isFavorite,omitempty"`

	State ProcessingState `json:"state"`

	// AnalyzedFingerprint is the fingerprint the current attributes were
	// derived from; empty until the first commit.
	AnalyzedFingerprint string `json:"analyzedFingerprint,omitempty"`
}

// HasTag reports whether the item carries the given (lowercased) tag.
func (m *MediaItem) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range m.Attributes.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FaceCluster groups items judged to show the same person. Clusters are
// created when the analyzer reports a previously unseen face signature
// and may later be merged.
type FaceCluster struct {
	ID      string   `json:"id"`
	Label   string   `json:"label,omitempty"`
	Members []string `json:"members"`
}

// Tokenize lowercases, trims and whitespace-splits free text into the
// tokens used by both the inverted token index and the query engine.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(text)))
}
