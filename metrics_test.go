package schoolauth

import (
	"sync"
	"testing"
	"time"

	"github.com/maxmusicschool/schoolauth/cache"
)

func TestMetricsCountersRespectEnabled(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		incs    int
		want    uint64
	}{
		{"disabled", false, 3, 0},
		{"enabled", true, 3, 3},
		{"enabled untouched", true, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMetrics(MetricsConfig{Enabled: tc.enabled})
			for range tc.incs {
				m.Inc(MetricLoginSuccess)
			}
			if got := m.Value(MetricLoginSuccess); got != tc.want {
				t.Fatalf("Value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMetricsIgnoresUnknownIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(metricIDCount)
	m.Observe(MetricLoginSuccess, time.Millisecond)
	if got := m.Value(metricIDCount); got != 0 {
		t.Fatalf("out of range id read %d", got)
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("Observe on a counter id changed it to %d", got)
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricValidateLatency, time.Millisecond)
	m.CacheObserver()(cache.EventHit)
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics reported enabled")
	}
	snap := m.Snapshot()
	if snap.Counters == nil || len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestMetricsLatencyNeedsCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{EnableLatencyHistograms: true})
	if m.LatencyEnabled() {
		t.Fatal("latency enabled without counters")
	}
}

func TestMetricsParallelIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers, each = 16, 5000
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRefreshSuccess); got != workers*each {
		t.Fatalf("Value = %d, want %d", got, workers*each)
	}
}

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{5*time.Millisecond + time.Microsecond, 1},
		{10 * time.Millisecond, 1},
		{24 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{99 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{time.Minute, 7},
	}
	for _, tc := range tests {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Errorf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricLoginFailure)
	m.Observe(MetricValidateLatency, 2*time.Millisecond)
	m.Observe(MetricValidateLatency, 40*time.Millisecond)
	m.Observe(MetricValidateLatency, time.Second)

	snap := m.Snapshot()
	if len(snap.Counters) != int(metricIDCount)-1 {
		t.Fatalf("expected %d counters, got %d", metricIDCount-1, len(snap.Counters))
	}
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricLoginFailure] != 2 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
	if _, ok := snap.Counters[MetricValidateLatency]; ok {
		t.Fatal("histogram id listed among counters")
	}

	want := []uint64{1, 0, 0, 1, 0, 0, 0, 1}
	got := snap.Histograms[MetricValidateLatency]
	if len(got) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("buckets = %v, want %v", got, want)
		}
	}

	// The snapshot is a copy.
	m.Inc(MetricLoginSuccess)
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatal("snapshot changed after Inc")
	}
}

func TestMetricsSnapshotWithoutLatency(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricValidateLatency, time.Millisecond)
	if h := m.Snapshot().Histograms; len(h) != 0 {
		t.Fatalf("expected no histograms, got %v", h)
	}
}

func TestMetricsCacheObserver(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	observe := m.CacheObserver()

	events := []cache.Event{
		cache.EventHit, cache.EventHit, cache.EventMiss,
		cache.EventBypass, cache.EventInvalidateFailed, cache.EventPendingFlushed,
	}
	for _, ev := range events {
		observe(ev)
	}

	for id, n := range map[MetricID]uint64{
		MetricCacheHit:              2,
		MetricCacheMiss:             1,
		MetricCacheBypass:           1,
		MetricCacheInvalidateFailed: 1,
		MetricCachePendingFlushed:   1,
	} {
		if got := m.Value(id); got != n {
			t.Errorf("metric %d = %d, want %d", id, got, n)
		}
	}
}
