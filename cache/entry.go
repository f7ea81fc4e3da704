package cache

import "time"

// Entry holds a cached value together with the bookkeeping metadata the
// eviction policies and the TTL sweep operate on.
type Entry[V any] struct {
	Key            string
	Value          V
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	Tags           []string
	// TTL of zero means the entry never expires.
	TTL time.Duration

	// seq is the insertion sequence number, used so eviction snapshots have a
	// stable iteration order.
	seq uint64
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *Entry[V]) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

func (e *Entry[V]) hasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EntryInfo is the read-only metadata view handed to eviction policies.
type EntryInfo struct {
	Key            string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
}
