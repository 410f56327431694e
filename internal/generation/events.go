package generation

import (
	"sync"
	"time"
)

// Event describes a single status transition of a generation.
type Event struct {
	GenerationID string
	From         Status
	To           Status
	Timestamp    time.Time
	// Metadata carries transition context such as the error message on a
	// FAILED transition or the video URL on COMPLETED.
	Metadata map[string]string
}

// Events fans status-change events out to subscribers over channels.
// Publishing never blocks: each subscriber has a bounded buffer and events
// to a full buffer are dropped, so a slow observer cannot stall the
// orchestrator.
type Events struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Event
	bufSize int
	closed  bool
	dropped int
}

// NewEvents creates an event hub with the given per-subscriber buffer size.
func NewEvents(bufSize int) *Events {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Events{
		subs:    make(map[int]chan Event),
		bufSize: bufSize,
	}
}

// Subscribe registers a new observer. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (e *Events) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Event, e.bufSize)
	if e.closed {
		close(ch)
		return ch, func() {}
	}

	id := e.nextID
	e.nextID++
	e.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if sub, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers without blocking.
func (e *Events) Publish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.dropped++
		}
	}
}

// Dropped returns the number of events discarded due to slow subscribers.
func (e *Events) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close unregisters all subscribers and closes their channels.
// Publish becomes a no-op afterwards.
func (e *Events) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}
