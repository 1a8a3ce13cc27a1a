// Package metrics registers the Prometheus metrics used by the relay.
// Importing any package that uses these vars registers them on the
// default registry before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts relayed requests labelled by endpoint
	// ("records", "chat") and outcome ("success", "error", "rejected").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of requests processed by the relay.",
		},
		[]string{"endpoint", "status"},
	)

	// RequestDuration observes end-to-end request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "End-to-end request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// CacheHits counts records requests served from cache.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_cache_hits_total",
			Help: "Records requests served from the cache.",
		},
	)

	// CacheMisses counts records requests that went upstream.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_cache_misses_total",
			Help: "Records requests that required an upstream fetch.",
		},
	)

	// CacheEntries tracks the current cache entry count.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_cache_entries",
			Help: "Current number of cache entries.",
		},
	)

	// UpstreamErrors counts upstream failures by upstream name and
	// error kind ("timeout", "unreachable", "rejected").
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_errors_total",
			Help: "Total upstream failures by kind.",
		},
		[]string{"upstream", "kind"},
	)

	// PagesFetched observes pages fetched per aggregation.
	PagesFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_pages_fetched",
			Help:    "Pages fetched per records aggregation.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	// RecordsReturned observes record counts per aggregated response.
	RecordsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_records_returned",
			Help:    "Records returned per aggregated response.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
)
