package cache

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorExposesSnapshot(t *testing.T) {
	c := newTestCache(newFakeClock(), 10, LRU{})
	defer c.Close()

	c.Set("k", "v")
	c.Get("k")
	c.Get("missing")

	col := NewCollector("kwlytics", c)
	assert.Equal(t, 7, testutil.CollectAndCount(col))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(col))
	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, fam := range families {
		byName[fam.GetName()] = fam.GetMetric()[0].GetCounter().GetValue() + fam.GetMetric()[0].GetGauge().GetValue()
	}
	assert.Equal(t, 1.0, byName["kwlytics_cache_hits_total"])
	assert.Equal(t, 1.0, byName["kwlytics_cache_misses_total"])
	assert.Equal(t, 1.0, byName["kwlytics_cache_entries"])
	assert.Equal(t, 0.5, byName["kwlytics_cache_hit_ratio"])
}
