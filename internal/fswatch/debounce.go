package fswatch

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is how long events accumulate before dispatch
const DefaultDebounceWindow = time.Second

// Debouncer coalesces events per path until drained. Renames are keyed by
// their old path.
type Debouncer struct {
	mu     sync.Mutex
	events map[string]Event
	order  []string
}

// NewDebouncer creates an empty debouncer
func NewDebouncer() *Debouncer {
	return &Debouncer{events: make(map[string]Event)}
}

// Add merges ev into the pending event for its path
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, ok := d.events[ev.Path]
	if !ok {
		d.order = append(d.order, ev.Path)
		d.events[ev.Path] = ev
		return
	}
	d.events[ev.Path] = Merge(prev, ev)
}

// Drain returns the pending events in first-seen order and clears them
func (d *Debouncer) Drain() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.order) == 0 {
		return nil
	}
	out := make([]Event, 0, len(d.order))
	for _, p := range d.order {
		out = append(out, d.events[p])
	}
	d.events = make(map[string]Event)
	d.order = nil
	return out
}

// Len returns the number of pending paths
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
