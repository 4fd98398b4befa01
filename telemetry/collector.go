// Package telemetry records per-evaluation latency, cache hit/miss counts,
// and error counts, and serves percentile snapshots from a bounded rolling
// sample. It can additionally export the same signals through Prometheus.
package telemetry

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultSampleSize is the number of recent latencies kept for percentile
// computation. A fixed-size ring bounds memory regardless of call volume.
const DefaultSampleSize = 10_000

// Metrics is a point-in-time snapshot of the collector's counters and
// latency percentiles. Latencies are in milliseconds, computed over the
// rolling sample.
type Metrics struct {
	TotalEvaluations uint64  `json:"total_evaluations"`
	CacheHits        uint64  `json:"cache_hits"`
	CacheMisses      uint64  `json:"cache_misses"`
	TotalErrors      uint64  `json:"total_errors"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
	P50LatencyMS     float64 `json:"p50_latency_ms"`
	P95LatencyMS     float64 `json:"p95_latency_ms"`
	P99LatencyMS     float64 `json:"p99_latency_ms"`
}

// Collector accumulates evaluation metrics. It is safe for many concurrent
// writers (evaluation calls) and a concurrent reader (dashboard polling
// Snapshot). The zero value is not usable; construct with New or Nop.
type Collector struct {
	disabled bool

	total  atomic.Uint64
	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64

	mu      sync.Mutex
	samples []float64
	next    int
	count   int

	prom *promInstruments
}

type promInstruments struct {
	evaluations *prometheus.CounterVec
	duration    prometheus.Histogram
}

// New creates a collector with the given rolling sample size (0 means
// DefaultSampleSize). When registerer is non-nil the collector also
// registers Prometheus instruments on it.
func New(sampleSize int, registerer prometheus.Registerer) *Collector {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	c := &Collector{samples: make([]float64, sampleSize)}

	if registerer != nil {
		c.prom = &promInstruments{
			evaluations: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "targetkit_evaluations_total",
					Help: "Total rule evaluations",
				},
				[]string{"cache", "status"},
			),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "targetkit_evaluation_duration_seconds",
				Help:    "Rule evaluation duration in seconds",
				Buckets: prometheus.DefBuckets,
			}),
		}
		registerer.MustRegister(c.prom.evaluations, c.prom.duration)
	}
	return c
}

// Nop returns a collector that records nothing and snapshots zeros, used
// when metrics are disabled at construction.
func Nop() *Collector {
	return &Collector{disabled: true}
}

// Record adds one evaluation observation.
func (c *Collector) Record(latencyMS float64, cacheHit, failed bool) {
	if c.disabled {
		return
	}

	c.total.Add(1)
	if cacheHit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if failed {
		c.errors.Add(1)
	}

	c.mu.Lock()
	c.samples[c.next] = latencyMS
	c.next = (c.next + 1) % len(c.samples)
	if c.count < len(c.samples) {
		c.count++
	}
	c.mu.Unlock()

	if c.prom != nil {
		cacheLabel := "miss"
		if cacheHit {
			cacheLabel = "hit"
		}
		status := "ok"
		if failed {
			status = "error"
		}
		c.prom.evaluations.WithLabelValues(cacheLabel, status).Inc()
		c.prom.duration.Observe(latencyMS / 1000)
	}
}

// Snapshot computes the current metrics. Percentiles use the nearest-rank
// method over a copy of the rolling sample, so a slow sort never holds up
// writers beyond the copy.
func (c *Collector) Snapshot() Metrics {
	if c.disabled {
		return Metrics{}
	}

	m := Metrics{
		TotalEvaluations: c.total.Load(),
		CacheHits:        c.hits.Load(),
		CacheMisses:      c.misses.Load(),
		TotalErrors:      c.errors.Load(),
	}

	c.mu.Lock()
	sample := make([]float64, c.count)
	copy(sample, c.samples[:c.count])
	c.mu.Unlock()

	if len(sample) == 0 {
		return m
	}
	sort.Float64s(sample)

	sum := 0.0
	for _, v := range sample {
		sum += v
	}
	m.AvgLatencyMS = sum / float64(len(sample))
	m.P50LatencyMS = percentile(sample, 50)
	m.P95LatencyMS = percentile(sample, 95)
	m.P99LatencyMS = percentile(sample, 99)
	return m
}

// Reset clears all counters and the latency sample. Prometheus instruments
// are left alone: their counters are monotonic by contract.
func (c *Collector) Reset() {
	if c.disabled {
		return
	}
	c.total.Store(0)
	c.hits.Store(0)
	c.misses.Store(0)
	c.errors.Store(0)

	c.mu.Lock()
	c.next = 0
	c.count = 0
	c.mu.Unlock()
}

// percentile returns the nearest-rank percentile of an ascending sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
