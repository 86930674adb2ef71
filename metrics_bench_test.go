package schoolauth

import (
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	for b.Loop() {
		m.Inc(MetricLoginSuccess)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricCacheHit)
		}
	})
}

func BenchmarkMetricsObserveParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		var d time.Duration
		for pb.Next() {
			m.Observe(MetricValidateLatency, d)
			d = (d + 3*time.Millisecond) % time.Second
		}
	})
}

// Spreads increments over the counters a busy login path touches.
func BenchmarkMetricsHotPathParallel(b *testing.B) {
	hot := []MetricID{
		MetricLoginSuccess,
		MetricRefreshSuccess,
		MetricCacheHit,
		MetricCacheMiss,
		MetricRateLimitHit,
	}
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for i := 0; pb.Next(); i++ {
			m.Inc(hot[i%len(hot)])
		}
	})
}

func BenchmarkMetricsSnapshot(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	b.ReportAllocs()
	for b.Loop() {
		_ = m.Snapshot()
	}
}
