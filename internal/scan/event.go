// Package scan contains the validation pipeline: the shared work queue,
// the directory walker and its background dispatcher, the decode worker
// pool, and the coordinator that owns their lifecycle, synchronization
// and the final report.
package scan

import "sync"

// Event is a manual-reset latch. While set, its channel is closed and
// every waiter is released; Reset arms a fresh channel. IsSet is the
// zero-timeout probe used to test worker idleness without blocking.
//
// Workers wait on the disjunction of two events by selecting across
// their channels.
type Event struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewEvent returns an Event in the given initial state.
func NewEvent(set bool) *Event {
	e := &Event{ch: make(chan struct{}), set: set}
	if set {
		close(e.ch)
	}
	return e
}

// Set latches the event, releasing all current and future waiters.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		e.set = true
		close(e.ch)
	}
}

// Reset returns the event to the unsignaled state.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

// IsSet probes the state without blocking.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// C returns the wait channel: closed while the event is set. The channel
// is only valid until the next Reset; waiters re-fetch it per wait.
func (e *Event) C() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}
