package telemetry

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := New(100, nil)

	c.Record(1.0, false, false)
	c.Record(2.0, true, false)
	c.Record(3.0, false, true)

	m := c.Snapshot()
	assert.Equal(t, uint64(3), m.TotalEvaluations)
	assert.Equal(t, uint64(1), m.CacheHits)
	assert.Equal(t, uint64(2), m.CacheMisses)
	assert.Equal(t, uint64(1), m.TotalErrors)
	assert.InDelta(t, 2.0, m.AvgLatencyMS, 1e-9)
}

func TestCollectorPercentiles(t *testing.T) {
	c := New(1000, nil)
	// 1..100 ms, one observation each: p50=50, p95=95, p99=99.
	for i := 1; i <= 100; i++ {
		c.Record(float64(i), false, false)
	}

	m := c.Snapshot()
	assert.Equal(t, 50.0, m.P50LatencyMS)
	assert.Equal(t, 95.0, m.P95LatencyMS)
	assert.Equal(t, 99.0, m.P99LatencyMS)
	assert.InDelta(t, 50.5, m.AvgLatencyMS, 1e-9)
}

func TestCollectorRingBounds(t *testing.T) {
	c := New(10, nil)
	// 100 slow observations pushed out by 10 fast ones.
	for i := 0; i < 100; i++ {
		c.Record(1000, false, false)
	}
	for i := 0; i < 10; i++ {
		c.Record(1, false, false)
	}

	m := c.Snapshot()
	assert.Equal(t, uint64(110), m.TotalEvaluations, "counters cover all calls")
	assert.Equal(t, 1.0, m.P99LatencyMS, "percentiles cover only the rolling sample")
}

func TestCollectorReset(t *testing.T) {
	c := New(100, nil)
	c.Record(5, true, true)

	c.Reset()
	m := c.Snapshot()
	assert.Equal(t, Metrics{}, m)
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := New(1000, nil)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Record(float64(j%10), j%2 == 0, false)
			}
		}()
	}
	// Concurrent snapshot reader, as a dashboard would poll.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = c.Snapshot()
		}
	}()
	wg.Wait()

	m := c.Snapshot()
	assert.Equal(t, uint64(8000), m.TotalEvaluations)
	assert.Equal(t, m.TotalEvaluations, m.CacheHits+m.CacheMisses)
}

func TestCollectorPrometheusRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(100, reg)
	c.Record(12, false, false)
	c.Record(3, true, true)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["targetkit_evaluations_total"])
	assert.True(t, names["targetkit_evaluation_duration_seconds"])
}

func TestNopCollector(t *testing.T) {
	c := Nop()
	c.Record(5, true, true)
	assert.Equal(t, Metrics{}, c.Snapshot())
}
