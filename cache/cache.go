package cache

import (
	"path"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store defines the contract the query layer programs against.
type Store[V any] interface {
	Set(key string, value V, opts ...SetOption)
	Get(key string) (V, bool)
	Remove(key string) bool
	InvalidateByTag(tag string) int
	Clear()
	Metrics() Metrics
	Stats() Stats
	Close() error
}

// DefaultMaxSize is the entry cap used when Config.MaxSize is zero.
const DefaultMaxSize = 1000

// Config controls capacity, expiry and instrumentation of a Cache.
type Config struct {
	// MaxSize is the entry cap enforced on every Set. Zero means DefaultMaxSize.
	MaxSize int
	// DefaultTTL applies to entries stored without an explicit WithTTL option.
	// Zero disables expiry for those entries.
	DefaultTTL time.Duration
	// Policy picks the eviction victim. Defaults to LRU.
	Policy Policy
	// SweepInterval is how often the background sweep purges expired-but-unread
	// entries. Zero disables the sweeper; expired entries are then only
	// reclaimed lazily on access.
	SweepInterval time.Duration
	// Clock overrides time.Now so TTL behavior is testable without sleeping.
	Clock  func() time.Time
	Logger *zap.Logger
}

// DefaultConfig returns the settings used by the hosted dashboards: a thousand
// entries, five minutes of freshness, LRU reclamation, a sweep per minute.
func DefaultConfig() Config {
	return Config{
		MaxSize:       DefaultMaxSize,
		DefaultTTL:    5 * time.Minute,
		Policy:        LRU{},
		SweepInterval: time.Minute,
	}
}

// Cache is a bounded, tag-aware in-memory store with per-entry TTLs.
// All methods are safe for concurrent use.
type Cache[V any] struct {
	mu      sync.RWMutex
	cfg     Config
	entries map[string]*Entry[V]
	seq     uint64
	stats   counters
	subs    map[string]func(Event)

	stopSweep chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
	now       func() time.Time
}

var _ Store[any] = (*Cache[any])(nil)

// New creates a Cache. If cfg.SweepInterval is positive a background sweep
// goroutine runs until Close is called.
func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Policy == nil {
		cfg.Policy = LRU{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &Cache[V]{
		cfg:       cfg,
		entries:   make(map[string]*Entry[V]),
		subs:      make(map[string]func(Event)),
		stopSweep: make(chan struct{}),
		logger:    cfg.Logger,
		now:       cfg.Clock,
	}
	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

type setConfig struct {
	tags   []string
	ttl    time.Duration
	ttlSet bool
}

// SetOption tweaks a single Set call.
type SetOption func(*setConfig)

// WithTags attaches tags so the entry can later be removed by InvalidateByTag.
func WithTags(tags ...string) SetOption {
	return func(sc *setConfig) { sc.tags = tags }
}

// WithTTL overrides the store's DefaultTTL for this entry. A zero ttl disables
// expiry.
func WithTTL(ttl time.Duration) SetOption {
	return func(sc *setConfig) { sc.ttl, sc.ttlSet = ttl, true }
}

// Set inserts or replaces an entry. When the store is at capacity and the key
// is new, the configured eviction policy runs exactly once before insertion,
// so the store never transiently exceeds MaxSize.
func (c *Cache[V]) Set(key string, value V, opts ...SetOption) {
	sc := setConfig{}
	for _, opt := range opts {
		opt(&sc)
	}
	if !sc.ttlSet {
		sc.ttl = c.cfg.DefaultTTL
	}
	now := c.now()

	var evicted string
	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxSize {
		evicted = c.evictLocked(now)
	}
	c.seq++
	c.entries[key] = &Entry[V]{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		Tags:           sc.tags,
		TTL:            sc.ttl,
		seq:            c.seq,
	}
	c.stats.lastUpdated = now
	c.mu.Unlock()

	if evicted != "" {
		c.logger.Debug("cache entry evicted",
			zap.String("key", evicted),
			zap.String("policy", c.cfg.Policy.Name()))
		c.notify(Event{Type: EventEvict, Key: evicted})
	}
	c.notify(Event{Type: EventSet, Key: key})
}

// Get returns the value for key, treating expired entries as absent and
// removing them as a side effect of the read. A hit bumps the entry's access
// statistics; both outcomes feed the metrics counters.
func (c *Cache[V]) Get(key string) (V, bool) {
	start := time.Now()
	now := c.now()

	var value V
	expired := false
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.Expired(now) {
		delete(c.entries, key)
		c.stats.expirations++
		ok, expired = false, true
	}
	if ok {
		e.AccessCount++
		e.LastAccessedAt = now
		value = e.Value
	}
	c.stats.observe(ok, time.Since(start), now)
	c.mu.Unlock()

	if expired {
		c.notify(Event{Type: EventExpire, Key: key})
	}
	return value, ok
}

// Remove deletes key unconditionally and reports whether an entry existed.
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if ok {
		c.notify(Event{Type: EventRemove, Key: key})
	}
	return ok
}

// InvalidateByTag removes every entry whose tag set contains tag and returns
// the count removed. A single business mutation can invalidate all dependent
// entries this way without callers knowing individual keys.
func (c *Cache[V]) InvalidateByTag(tag string) int {
	c.mu.Lock()
	removed := make([]string, 0)
	for key, e := range c.entries {
		if e.hasTag(tag) {
			delete(c.entries, key)
			removed = append(removed, key)
		}
	}
	c.mu.Unlock()

	for _, key := range removed {
		c.notify(Event{Type: EventInvalidate, Key: key, Tag: tag})
	}
	return len(removed)
}

// Clear removes all entries and resets the metrics counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.stats = counters{}
	c.mu.Unlock()
	c.notify(Event{Type: EventClear})
}

// ClearMatching removes entries whose key matches the glob pattern and returns
// the count removed. It backs the inspection API's selective clear.
func (c *Cache[V]) ClearMatching(pattern string) int {
	c.mu.Lock()
	removed := make([]string, 0)
	for key := range c.entries {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			delete(c.entries, key)
			removed = append(removed, key)
		}
	}
	c.mu.Unlock()

	for _, key := range removed {
		c.notify(Event{Type: EventRemove, Key: key})
	}
	return len(removed)
}

// Len returns the number of resident entries, including any not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Metrics returns a snapshot of the performance counters.
func (c *Cache[V]) Metrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats.snapshot(len(c.entries))
}

// Stats returns the inspection view: current size plus sorted keys.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return Stats{Size: len(keys), Keys: keys}
}

// PurgeExpired removes every expired entry immediately and returns the count.
// The background sweep calls this on its interval; tests and operational
// tooling may call it directly.
func (c *Cache[V]) PurgeExpired() int {
	now := c.now()
	c.mu.Lock()
	removed := make([]string, 0)
	for key, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, key)
			c.stats.expirations++
			removed = append(removed, key)
		}
	}
	c.mu.Unlock()

	for _, key := range removed {
		c.notify(Event{Type: EventExpire, Key: key})
	}
	return len(removed)
}

// Close stops the background sweep. It is safe to call more than once.
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.stopSweep) })
	return nil
}

// evictLocked runs the configured policy over an insertion-ordered snapshot
// and removes the victim. Caller holds c.mu.
func (c *Cache[V]) evictLocked(now time.Time) string {
	infos := make([]EntryInfo, 0, len(c.entries))
	seqs := make(map[string]uint64, len(c.entries))
	for _, e := range c.entries {
		infos = append(infos, EntryInfo{
			Key:            e.Key,
			CreatedAt:      e.CreatedAt,
			LastAccessedAt: e.LastAccessedAt,
			AccessCount:    e.AccessCount,
		})
		seqs[e.Key] = e.seq
	}
	sort.Slice(infos, func(i, j int) bool { return seqs[infos[i].Key] < seqs[infos[j].Key] })

	victim, ok := c.cfg.Policy.Victim(infos, now)
	if !ok {
		return ""
	}
	delete(c.entries, victim)
	c.stats.evictions++
	return victim
}

func (c *Cache[V]) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			if n := c.PurgeExpired(); n > 0 {
				c.logger.Debug("cache sweep purged expired entries", zap.Int("count", n))
			}
		}
	}
}
