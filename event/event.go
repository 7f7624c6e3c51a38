package event

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one dispatch of a named event. It is passed to every observer
// and carries the stop flag, the state set by the stopping observer, and a
// data bag shared between observers.
//
// All methods are safe for concurrent use by async observers.
type Event struct {
	id   string
	key  string
	time time.Time

	mu        sync.RWMutex
	callStack []string
	stopped   bool
	state     any
	index     int
	data      map[string]any
}

// NewEvent creates an event for key. callStack lists the identifiers of the
// observers that will be notified, in dispatch order.
func NewEvent(key string, callStack []string) *Event {
	return &Event{
		id:        uuid.NewString(),
		key:       key,
		time:      time.Now(),
		callStack: append([]string(nil), callStack...),
		data:      make(map[string]any),
	}
}

// ID returns the unique identifier of this dispatch.
func (e *Event) ID() string { return e.id }

// Key returns the event name.
func (e *Event) Key() string { return e.key }

// Time returns when the event was created.
func (e *Event) Time() time.Time { return e.time }

// CallStack returns the observer identifiers in dispatch order.
func (e *Event) CallStack() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return append([]string(nil), e.callStack...)
}

// Index returns the position in the call stack reached so far.
func (e *Event) Index() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.index
}

// Next advances the call stack position.
func (e *Event) Next() *Event {
	e.mu.Lock()
	e.index++
	e.mu.Unlock()

	return e
}

// Stop prevents the remaining sync observers from running.
func (e *Event) Stop() *Event {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	return e
}

// IsStopped reports whether the event was stopped.
func (e *Event) IsStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.stopped
}

// State returns the value set by the observer that stopped the event.
func (e *Event) State() any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state
}

// SetState sets the event state without stopping it.
func (e *Event) SetState(state any) *Event {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()

	return e
}

func (e *Event) halt(state any) {
	e.mu.Lock()
	e.stopped = true
	e.state = state
	e.mu.Unlock()
}

// Set stores a value in the data bag.
func (e *Event) Set(key string, value any) *Event {
	e.mu.Lock()
	e.data[key] = value
	e.mu.Unlock()

	return e
}

// Get returns a value from the data bag.
func (e *Event) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.data[key]
	return v, ok
}

// Has reports whether the data bag holds key.
func (e *Event) Has(key string) bool {
	_, ok := e.Get(key)
	return ok
}

// Remove deletes key from the data bag.
func (e *Event) Remove(key string) *Event {
	e.mu.Lock()
	delete(e.data, key)
	e.mu.Unlock()

	return e
}

// Data returns a copy of the data bag.
func (e *Event) Data() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	data := make(map[string]any, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return data
}

// DataKeys returns the data bag keys, sorted.
func (e *Event) DataKeys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
