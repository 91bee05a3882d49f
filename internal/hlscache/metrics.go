package hlscache

import "github.com/prometheus/client_golang/prometheus"

// metrics groups the counters/gauges exported at /metrics. A single set is
// registered per process; components take a *metrics and increment fields
// directly rather than reaching for the global registry themselves.
type metrics struct {
	jobsRunning       prometheus.Gauge
	jobsStartedTotal  prometheus.Counter
	jobsCancelledTotal prometheus.Counter
	jobsFailedTotal   prometheus.Counter

	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	cacheEvictionsTotal prometheus.Counter

	segmentBytesServed prometheus.Counter
}

// NewMetrics constructs and registers the core's metrics on reg. Pass a
// fresh prometheus.NewRegistry() in tests to avoid collisions with the
// global default registry.
func NewMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kestrel",
			Subsystem: "hlscache",
			Name:      "jobs_running",
			Help:      "Number of transcoder subprocesses currently running.",
		}),
		jobsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "hlscache",
			Name:      "jobs_started_total",
			Help:      "Total number of transcoder subprocesses spawned.",
		}),
		jobsCancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "hlscache",
			Name:      "jobs_cancelled_total",
			Help:      "Total number of transcoder subprocesses cancelled (preemption, eviction, or shutdown).",
		}),
		jobsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "hlscache",
			Name:      "jobs_failed_total",
			Help:      "Total number of transcoder subprocesses that exited non-zero or timed out.",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "hlscache",
			Name:      "cache_hits_total",
			Help:      "Total number of CacheStore.Get calls that returned an entry, complete or pending.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "hlscache",
			Name:      "cache_misses_total",
			Help:      "Total number of CacheStore.Get calls that found no usable entry.",
		}),
		cacheEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "hlscache",
			Name:      "cache_evictions_total",
			Help:      "Total number of cache entries evicted (FIFO cap, TTL, or replacement).",
		}),
		segmentBytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Subsystem: "hlscache",
			Name:      "segment_bytes_served_total",
			Help:      "Total bytes of .ts segment data served to clients.",
		}),
	}

	reg.MustRegister(
		m.jobsRunning,
		m.jobsStartedTotal,
		m.jobsCancelledTotal,
		m.jobsFailedTotal,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheEvictionsTotal,
		m.segmentBytesServed,
	)

	return m
}

// noopMetrics is used when the caller does not care to wire a registry
// (mainly in unit tests that construct components directly).
func noopMetrics() *metrics {
	return NewMetrics(prometheus.NewRegistry())
}
