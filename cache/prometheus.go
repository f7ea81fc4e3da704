package cache

import "github.com/prometheus/client_golang/prometheus"

// MetricsSource is anything that can produce a Metrics snapshot. *Cache
// satisfies it for every value type.
type MetricsSource interface {
	Metrics() Metrics
}

// Collector exposes a store's metrics snapshot to a Prometheus scrape.
// Register it with a prometheus.Registerer; it reads the snapshot at collect
// time, so there is no double bookkeeping.
type Collector struct {
	src MetricsSource

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	size        *prometheus.Desc
	hitRatio    *prometheus.Desc
	avgLatency  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector with metric names under
// <namespace>_cache_*.
func NewCollector(namespace string, src MetricsSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, nil)
	}
	return &Collector{
		src:         src,
		hits:        desc("hits_total", "Number of cache lookups answered from the store."),
		misses:      desc("misses_total", "Number of cache lookups that fell through."),
		evictions:   desc("evictions_total", "Number of entries removed by the eviction policy."),
		expirations: desc("expirations_total", "Number of entries removed because their TTL elapsed."),
		size:        desc("entries", "Current number of resident entries."),
		hitRatio:    desc("hit_ratio", "Hits divided by total lookups."),
		avgLatency:  desc("avg_lookup_ms", "Running mean lookup latency in milliseconds."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expirations
	ch <- c.size
	ch <- c.hitRatio
	ch <- c.avgLatency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.src.Metrics()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(m.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(m.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(m.Evictions))
	ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(m.Expirations))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(m.Size))
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, m.HitRatio)
	ch <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, m.AvgResponseTimeMs)
}
