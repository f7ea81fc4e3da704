package cache

import "time"

// Metrics is a point-in-time snapshot of store performance counters. It is a
// copy, never a live reference.
type Metrics struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Expirations   int64
	TotalRequests int64
	// HitRatio is Hits/TotalRequests, or 0 before the first lookup.
	HitRatio float64
	// AvgResponseTimeMs is a running mean over lookup latencies.
	AvgResponseTimeMs float64
	Size              int
	LastUpdated       time.Time
}

// Stats is the lightweight inspection view exposed to operational tooling.
type Stats struct {
	Size int
	Keys []string
}

// counters is mutated under the store lock; Metrics() copies it out, so the
// struct itself carries no synchronization.
type counters struct {
	hits        int64
	misses      int64
	evictions   int64
	expirations int64
	avgMs       float64
	samples     int64
	lastUpdated time.Time
}

func (c *counters) observe(hit bool, elapsed time.Duration, now time.Time) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	// Incremental running mean: avg' = avg + (sample-avg)/n.
	c.samples++
	sample := float64(elapsed.Nanoseconds()) / 1e6
	c.avgMs += (sample - c.avgMs) / float64(c.samples)
	c.lastUpdated = now
}

func (c *counters) snapshot(size int) Metrics {
	m := Metrics{
		Hits:              c.hits,
		Misses:            c.misses,
		Evictions:         c.evictions,
		Expirations:       c.expirations,
		TotalRequests:     c.hits + c.misses,
		AvgResponseTimeMs: c.avgMs,
		Size:              size,
		LastUpdated:       c.lastUpdated,
	}
	if m.TotalRequests > 0 {
		m.HitRatio = float64(c.hits) / float64(m.TotalRequests)
	}
	return m
}
