package library

import (
	"errors"
	"reflect"
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	states := []ProcessingState{
		StateUnprocessed, StateQueued, StateProcessing, StateProcessed, StateFailed,
	}

	legal := map[ProcessingState][]ProcessingState{
		StateUnprocessed: {StateQueued},
		StateQueued:      {StateProcessing},
		StateProcessing:  {StateProcessed, StateFailed},
		StateProcessed:   {StateQueued},
		StateFailed:      {StateQueued},
	}

	for _, from := range states {
		for _, to := range states {
			want := false
			for _, l := range legal[from] {
				if l == to {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state ProcessingState
		want  bool
	}{
		{StateUnprocessed, false},
		{StateQueued, false},
		{StateProcessing, false},
		{StateProcessed, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   \t\n", nil},
		{"single word", "Beach", []string{"beach"}},
		{"multiple words", "Beachside Cafe Receipt", []string{"beachside", "cafe", "receipt"}},
		{"extra whitespace", "  sunny   beach  ", []string{"sunny", "beach"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAttributesNormalize(t *testing.T) {
	t.Parallel()

	attrs := Attributes{
		Tags:         []string{" Beach", "beach", "VACATION", "", "nature"},
		DetectedText: "  receipt  ",
		FaceClusters: []string{"c2", "c1", "c2"},
		Location:     " Lisbon ",
	}

	got := attrs.Normalize()

	wantTags := []string{"beach", "nature", "vacation"}
	if !reflect.DeepEqual(got.Tags, wantTags) {
		t.Errorf("Tags = %v, want %v", got.Tags, wantTags)
	}
	wantClusters := []string{"c1", "c2"}
	if !reflect.DeepEqual(got.FaceClusters, wantClusters) {
		t.Errorf("FaceClusters = %v, want %v", got.FaceClusters, wantClusters)
	}
	if got.DetectedText != "receipt" {
		t.Errorf("DetectedText = %q, want %q", got.DetectedText, "receipt")
	}
	if got.Location != "Lisbon" {
		t.Errorf("Location = %q, want %q", got.Location, "Lisbon")
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	transient := &TransientError{Capability: "ocr", Err: errors.New("timeout")}
	permanent := &PermanentError{Capability: "tags", Err: errors.New("unreadable")}

	if !IsTransient(transient) {
		t.Error("expected IsTransient(transient) = true")
	}
	if IsTransient(permanent) {
		t.Error("expected IsTransient(permanent) = false")
	}
	if !IsPermanent(permanent) {
		t.Error("expected IsPermanent(permanent) = true")
	}
	if IsPermanent(transient) {
		t.Error("expected IsPermanent(transient) = false")
	}

	// Wrapped errors must still classify
	wrapped := errors.Join(errors.New("context"), transient)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped transient error to classify as transient")
	}
}
