package analyzer

import (
	"context"

	"media-library/internal/library"
)

// Capability names one independent unit of analysis.
type Capability string

const (
	CapabilityTags     Capability = "tags"
	CapabilityText     Capability = "text"
	CapabilityFaces    Capability = "faces"
	CapabilityLocation Capability = "location"
)

// Tagger produces descriptive tags for an item's content.
type Tagger interface {
	Tags(ctx context.Context, content []byte) ([]string, error)
}

// TextRecognizer extracts visible text (OCR) from an item's content.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, content []byte) (string, error)
}

// FaceDetector returns one signature per face found in the content.
// A signature is a stable opaque string: the same person yields the
// same signature across items. Cluster identity is assigned by the
// index, not the detector.
type FaceDetector interface {
	DetectFaces(ctx context.Context, content []byte) ([]string, error)
}

// Geocoder derives a human-readable location string from the content
// (typically from embedded EXIF coordinates).
type Geocoder interface {
	Locate(ctx context.Context, content []byte) (string, error)
}

// Analyzer bundles the capability subset a provider implements. Nil
// fields mean the capability is absent and are skipped by the
// scheduler.
type Analyzer struct {
	Tagger         Tagger
	TextRecognizer TextRecognizer
	FaceDetector   FaceDetector
	Geocoder       Geocoder
}

// Capabilities returns the capabilities this analyzer provides, in the
// fixed order the scheduler runs them.
func (a Analyzer) Capabilities() []Capability {
	var caps []Capability
	if a.Tagger != nil {
		caps = append(caps, CapabilityTags)
	}
	if a.TextRecognizer != nil {
		caps = append(caps, CapabilityText)
	}
	if a.FaceDetector != nil {
		caps = append(caps, CapabilityFaces)
	}
	if a.Geocoder != nil {
		caps = append(caps, CapabilityLocation)
	}
	return caps
}

// Transient wraps err as a retriable failure of the given capability.
func Transient(cap Capability, err error) error {
	return &library.TransientError{Capability: string(cap), Err: err}
}

// Permanent wraps err as a structural, non-retriable failure.
func Permanent(cap Capability, err error) error {
	return &library.PermanentError{Capability: string(cap), Err: err}
}
