package pipeline

import "sync"

// EventType names a pipeline change notification.
type EventType string

const (
	EventSyncComplete       EventType = "sync_complete"
	EventBatchComplete      EventType = "batch_complete"
	EventCollectionsUpdated EventType = "collections_updated"
	EventIndexRebuilt       EventType = "index_rebuilt"
	EventFavoriteToggled    EventType = "favorite_toggled"
)

// Event is one change notification.
type Event struct {
	Type   EventType `json:"type"`
	Detail string    `json:"detail,omitempty"`
}

// broadcaster fans events out to subscribers. Sends never block: a
// subscriber that stops draining loses events, not the pipeline.
type broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

// subscribe registers a listener. The returned func unsubscribes and
// closes the channel.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
