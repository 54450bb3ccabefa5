package snapshot

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"media-library/internal/library"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "snapshot.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	items := []library.MediaItem{
		{
			ID:          "photos/beach.jpg",
			Fingerprint: "abc123",
			CreatedAt:   created,
			Kind:        library.KindPhoto,
			Attributes: library.Attributes{
				Tags:         []string{"beach", "vacation"},
				DetectedText: "Playa del Carmen",
				FaceClusters: []string{"cluster-1"},
				Location:     "Mexico",
			},
			IsFavorite:          true,
			State:               library.StateProcessed,
			AnalyzedFingerprint: "abc123",
		},
		{
			ID:          "videos/clip.mp4",
			Fingerprint: "def456",
			CreatedAt:   created.Add(time.Hour),
			Kind:        library.KindVideo,
			State:       library.StateUnprocessed,
		},
	}

	if err := s.Save(ctx, items, 42); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, version, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if version != 42 {
		t.Errorf("version = %d, want 42", version)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d items, want 2", len(got))
	}

	// Load normalizes nil attribute slices to empty.
	want := items
	want[1].Attributes.Tags = []string{}
	want[1].Attributes.FaceClusters = []string{}
	for i := range want {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("item %d:\n got %+v\nwant %+v", i, got[i], want[i])
		}
	}
}

func TestSaveReplacesPriorSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []library.MediaItem{
		{ID: "a", Fingerprint: "f1", CreatedAt: time.Now(), Kind: library.KindPhoto, State: library.StateProcessed},
		{ID: "b", Fingerprint: "f2", CreatedAt: time.Now(), Kind: library.KindPhoto, State: library.StateProcessed},
	}
	if err := s.Save(ctx, first, 1); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := []library.MediaItem{
		{ID: "c", Fingerprint: "f3", CreatedAt: time.Now(), Kind: library.KindVideo, State: library.StateFailed},
	}
	if err := s.Save(ctx, second, 2); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, version, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("Load = %+v, want only item c", got)
	}
	if got[0].State != library.StateFailed {
		t.Errorf("state = %s, want failed", got[0].State)
	}
}

func TestLoadEmptyStore(t *testing.T) {
	s := newTestStore(t)

	got, version, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load = %v, want empty", got)
	}
	if version != 0 {
		t.Errorf("version = %d, want 0", version)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.db")
	ctx := context.Background()

	s, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	items := []library.MediaItem{
		{ID: "kept", Fingerprint: "fp", CreatedAt: time.Now(), Kind: library.KindPhoto, State: library.StateProcessed},
	}
	if err := s.Save(ctx, items, 7); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() {
		if err := reopened.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	got, version, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "kept" || version != 7 {
		t.Errorf("Load = (%+v, %d), want item kept at version 7", got, version)
	}
}
