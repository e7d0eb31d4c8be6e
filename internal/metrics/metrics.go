// Package metrics defines the Prometheus collectors for the playlist
// resolver. All collectors are registered via promauto at init time and
// shared across packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_resolver_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playlist_resolver_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playlist_resolver_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_resolver_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playlist_resolver_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	SnapshotSwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_resolver_snapshot_swaps_total",
			Help: "Total number of playlist snapshot replacements",
		},
		[]string{"status"},
	)
)

// Resolver metrics
var (
	ResolverOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_resolver_resolution_outcomes_total",
			Help: "Resolution outcomes by tier or failure reason",
		},
		[]string{"outcome"},
	)

	ResolverBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playlist_resolver_resolution_batch_duration_seconds",
			Help:    "Duration of a full resolveMany pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ResolverWriteBackErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playlist_resolver_write_back_errors_total",
			Help: "Failed asynchronous track write-backs to the durable store",
		},
	)
)

// Cache metrics
var (
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playlist_resolver_cache_hits_total",
			Help: "Ephemeral track cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playlist_resolver_cache_misses_total",
			Help: "Ephemeral track cache misses (including expired entries)",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playlist_resolver_cache_entries",
			Help: "Current number of entries in the ephemeral track cache",
		},
	)
)

// Discovery metrics
var (
	DiscoveryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playlist_resolver_discovery_requests_total",
			Help: "Requests to the external discovery service",
		},
		[]string{"endpoint", "status"},
	)

	DiscoveryRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playlist_resolver_discovery_request_duration_seconds",
			Help:    "Discovery service request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	DiscoveryRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playlist_resolver_discovery_retries_total",
			Help: "Retried discovery calls after rate-limit or server errors",
		},
	)
)
