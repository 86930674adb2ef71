package schoolauth

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/maxmusicschool/schoolauth/cache"
)

// MetricID identifies a counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginInactive
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricSessionRevoked
	MetricValidateFailure
	MetricAuthorizeDenied
	MetricRateLimitHit
	MetricCacheHit
	MetricCacheMiss
	MetricCacheBypass
	MetricCacheInvalidateFailed
	MetricCachePendingFlushed
	// MetricValidateLatency is the only histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)
// latencyBounds are the inclusive upper bounds of the validate latency
// buckets. Anything slower lands in the final overflow bucket.
var latencyBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type counterCell struct {
	n atomic.Uint64
	_ [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the validate latency histogram. It
// is created before the engine so the cache accessors can share it.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counterCell
	latency       [histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics honouring cfg. Latency histograms are only
// recorded when counters are enabled as well.
func NewMetrics(cfg MetricsConfig) *Metrics {
	m := new(Metrics)
	m.enabled = cfg.Enabled
	m.enableLatency = cfg.Enabled && cfg.EnableLatencyHistograms
	return m
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.enableLatency }

// Inc adds one to counter id. It is a no-op on a nil or disabled Metrics.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d. MetricValidateLatency is the only id with a histogram,
// every other id is ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricValidateLatency || !m.LatencyEnabled() {
		return
	}
	m.latency[bucketIndex(d)].Add(1)
}

// Value reads counter id. Out of range ids read as zero.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies the current values. A disabled Metrics yields empty,
// non-nil maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := range metricIDCount {
		if id != MetricValidateLatency {
			s.Counters[id] = m.counters[id].n.Load()
		}
	}
	if m.enableLatency {
		buckets := make([]uint64, 0, histBucketCount)
		for i := range m.latency {
			buckets = append(buckets, m.latency[i].Load())
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

var cacheEventMetric = map[cache.Event]MetricID{
	cache.EventHit:              MetricCacheHit,
	cache.EventMiss:             MetricCacheMiss,
	cache.EventBypass:           MetricCacheBypass,
	cache.EventInvalidateFailed: MetricCacheInvalidateFailed,
	cache.EventPendingFlushed:   MetricCachePendingFlushed,
}

// CacheObserver returns a cache.Options observer that counts cache events.
func (m *Metrics) CacheObserver() func(cache.Event) {
	return func(ev cache.Event) {
		if id, ok := cacheEventMetric[ev]; ok {
			m.Inc(id)
		}
	}
}

func bucketIndex(d time.Duration) int {
	i, _ := slices.BinarySearch(latencyBounds[:], d)
	return i
}
