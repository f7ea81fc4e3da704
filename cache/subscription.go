package cache

import "github.com/google/uuid"

// EventType identifies why a key changed.
type EventType string

const (
	EventSet        EventType = "set"
	EventRemove     EventType = "remove"
	EventEvict      EventType = "evict"
	EventExpire     EventType = "expire"
	EventInvalidate EventType = "invalidate"
	EventClear      EventType = "clear"
)

// Event describes a single store mutation.
type Event struct {
	Type EventType
	Key  string
	// Tag is set for EventInvalidate.
	Tag string
}

// Subscribe registers a listener for store mutations and returns the function
// that removes it. Listeners run synchronously after the store lock is
// released, in no particular order; a listener may safely call back into the
// store.
func (c *Cache[V]) Subscribe(fn func(Event)) func() {
	id := uuid.NewString()
	c.mu.Lock()
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// notify fans an event out to current listeners. Must be called without c.mu
// held.
func (c *Cache[V]) notify(ev Event) {
	c.mu.RLock()
	if len(c.subs) == 0 {
		c.mu.RUnlock()
		return
	}
	fns := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
