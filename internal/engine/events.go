package engine

import (
	"sync"

	"github.com/dshills/filesift/pkg/types"
)

// DefaultEventBuffer is the channel capacity given to each subscriber
const DefaultEventBuffer = 64

// Events fans progress events out to subscribers. Delivery is best effort: a
// subscriber whose channel is full misses the event.
type Events struct {
	mu   sync.RWMutex
	subs map[int]chan types.ProgressEvent
	next int
}

// NewEvents creates an event hub with no subscribers
func NewEvents() *Events {
	return &Events{subs: make(map[int]chan types.ProgressEvent)}
}

// Subscribe returns a channel receiving future events and a function that
// unsubscribes and closes it
func (e *Events) Subscribe(buffer int) (<-chan types.ProgressEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	ch := make(chan types.ProgressEvent, buffer)

	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber without blocking
func (e *Events) Publish(ev types.ProgressEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
