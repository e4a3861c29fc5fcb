package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the application's Prometheus instruments. A nil *Collector
// is valid and records nothing.
type Collector struct {
	// Cache metrics
	CacheLookupsTotal     *prometheus.CounterVec
	CacheWriteErrorsTotal *prometheus.CounterVec
	CachePrunedTotal      prometheus.Counter

	// Upstream metrics
	UpstreamAttemptsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Aggregation metrics
	ForecastDays prometheus.Histogram
}

// NewCollector registers the instruments with reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by endpoint kind and result (hit, miss, stale, error)",
			},
			[]string{"kind", "result"},
		),

		CacheWriteErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_write_errors_total",
				Help:      "Failed cache writes by endpoint kind",
			},
			[]string{"kind"},
		),

		CachePrunedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_pruned_entries_total",
				Help:      "Cache entries removed by the janitor",
			},
		),

		UpstreamAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_attempts_total",
				Help:      "Upstream HTTP attempts by upstream and outcome (ok, transient, client, circuit_open)",
			},
			[]string{"upstream", "outcome"},
		),

		UpstreamRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Duration of a single upstream HTTP attempt",
				Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"upstream"},
		),

		ForecastDays: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "forecast_days",
				Help:      "Number of local days produced per forecast aggregation",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 7},
			},
		),
	}
}

// RecordCacheLookup increments the lookup counter.
func (c *Collector) RecordCacheLookup(kind, result string) {
	if c == nil {
		return
	}
	c.CacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// RecordCacheWriteError increments the write error counter.
func (c *Collector) RecordCacheWriteError(kind string) {
	if c == nil {
		return
	}
	c.CacheWriteErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordPruned adds n removed entries.
func (c *Collector) RecordPruned(n int) {
	if c == nil {
		return
	}
	c.CachePrunedTotal.Add(float64(n))
}

// RecordUpstreamAttempt counts one attempt and its duration.
func (c *Collector) RecordUpstreamAttempt(upstream, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.UpstreamAttemptsTotal.WithLabelValues(upstream, outcome).Inc()
	c.UpstreamRequestDuration.WithLabelValues(upstream).Observe(took.Seconds())
}

// RecordForecastDays observes the number of aggregated days.
func (c *Collector) RecordForecastDays(n int) {
	if c == nil {
		return
	}
	c.ForecastDays.Observe(float64(n))
}
