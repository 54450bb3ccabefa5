package voice

import (
	"errors"
	"sync"

	"media-library/internal/logging"
	"media-library/internal/query"
)

var (
	// ErrCaptureBusy means another voice session holds the input device.
	ErrCaptureBusy = errors.New("voice capture session already active")

	// ErrSessionClosed means the session was already released.
	ErrSessionClosed = errors.New("voice session closed")
)

// TranscriptEvent is one recognition update. Final marks the last
// event of an utterance.
type TranscriptEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// SearchFunc evaluates transcript text against the library.
type SearchFunc func(text string, filters query.FilterSet) ([]string, error)

// Adapter hands out exclusive capture sessions and routes their
// transcripts into the query engine.
type Adapter struct {
	search SearchFunc
	slot   chan struct{}
}

func NewAdapter(search SearchFunc) *Adapter {
	a := &Adapter{
		search: search,
		slot:   make(chan struct{}, 1),
	}
	a.slot <- struct{}{}
	return a
}

// Acquire claims the capture device. It never blocks: if a session is
// already active the caller gets ErrCaptureBusy immediately.
func (a *Adapter) Acquire() (*Session, error) {
	select {
	case <-a.slot:
		logging.Debug("Voice capture session acquired")
		return &Session{adapter: a}, nil
	default:
		return nil, ErrCaptureBusy
	}
}

// Active reports whether a capture session is currently held.
func (a *Adapter) Active() bool {
	return len(a.slot) == 0
}

// Session is one exclusive voice query. It must be released on every
// exit path; a final transcript or a search failure releases it
// automatically, Release covers explicit stops.
type Session struct {
	adapter *Adapter

	mu       sync.Mutex
	released bool
}

// Feed runs a search for one transcript event. Partial events keep
// the session open so refined transcripts can follow; a final event
// releases it after the search.
func (s *Session) Feed(ev TranscriptEvent) ([]string, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	ids, err := s.adapter.search(ev.Text, query.FilterSet{})
	if err != nil {
		s.Release()
		return nil, err
	}
	if ev.Final {
		s.Release()
	}
	return ids, nil
}

// Release returns the capture device. Safe to call more than once.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.adapter.slot <- struct{}{}
	logging.Debug("Voice capture session released")
}
