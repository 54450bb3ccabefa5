package library

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline failure taxonomy. Per-item and
// per-capability failures are isolated; ErrIndexCorrupt is the only
// condition fatal to the index.
var (
	// ErrAssetUnavailable means an item vanished between enumeration and
	// analysis. The item is dropped silently: no retry, no index entry.
	ErrAssetUnavailable = errors.New("asset unavailable")

	// ErrIndexCorrupt signals an internal index consistency violation
	// (e.g. a commit applied twice). It requires a full rebuild from the
	// asset source plus the stored item snapshot.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrMalformedQuery is returned for invalid filter combinations such
	// as an inverted date range. The query is rejected, never corrected.
	ErrMalformedQuery = errors.New("malformed query")

	// ErrUnknownItem is returned for operations on an id the index has
	// never seen.
	ErrUnknownItem = errors.New("unknown item")
)

// TransientError wraps a capability failure that is worth retrying:
// timeouts, resource exhaustion. Retries use exponential backoff up to
// the configured attempt ceiling.
type TransientError struct {
	Capability string
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Capability, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a structural capability failure (unreadable
// content). It marks the whole item Failed and is never retried.
type PermanentError struct {
	Capability string
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent %s failure: %v", e.Capability, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// StateTransitionError reports an attempted illegal processing state
// edge. The state machine has no other edges, so observing this error in
// production logs points at a scheduling bug.
type StateTransitionError struct {
	ID   string
	From ProcessingState
	To   ProcessingState
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal state transition for %s: %s -> %s", e.ID, e.From, e.To)
}
