// Package metrics defines the Prometheus collectors exported by scorepulse.
//
// Collectors are registered with the default registry on package init and
// exposed by the server package at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream metrics
var (
	// UpstreamRequestsTotal tracks outbound provider requests by provider and outcome
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorepulse_upstream_requests_total",
			Help: "Total upstream provider requests by provider and result (ok/error/circuit_open)",
		},
		[]string{"provider", "result"},
	)

	// UpstreamRequestDuration tracks outbound provider latency in seconds
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scorepulse_upstream_request_duration_seconds",
			Help:    "Upstream provider request duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	// CircuitBreakerState tracks the breaker state per provider (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scorepulse_circuit_breaker_state",
			Help: "Current circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)
)

// Cache metrics
var (
	// CacheRequestsTotal tracks cache lookups by result
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorepulse_cache_requests_total",
			Help: "Total cache lookups by result (hit/miss/stale/error)",
		},
		[]string{"result"},
	)

	// CacheCoalescedTotal tracks callers that shared another caller's in-flight fetch
	CacheCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scorepulse_cache_coalesced_total",
			Help: "Total cache callers that waited on an in-flight fetch instead of issuing their own",
		},
	)

	// CacheEntries tracks the number of cached upstream responses
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scorepulse_cache_entries",
			Help: "Current number of cached upstream responses",
		},
	)

	// CacheEvictionsTotal tracks entries removed by the sweeper
	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scorepulse_cache_evictions_total",
			Help: "Total cache entries removed by the age sweeper",
		},
	)
)

// Broadcast metrics
var (
	// SnapshotBuildsTotal tracks snapshot builds by outcome
	SnapshotBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorepulse_snapshot_builds_total",
			Help: "Total snapshot builds by result (changed/unchanged/error)",
		},
		[]string{"result"},
	)

	// FanoutWritesTotal tracks subscriber writes by outcome
	FanoutWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorepulse_fanout_writes_total",
			Help: "Total subscriber writes by result (ok/error)",
		},
		[]string{"result"},
	)

	// PassesSkippedTotal tracks keys skipped because their previous pass was still running
	PassesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scorepulse_passes_skipped_total",
			Help: "Total per-key passes skipped because the previous pass was still in flight",
		},
	)

	// HeldSnapshots tracks the number of keys with a held snapshot
	HeldSnapshots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scorepulse_held_snapshots",
			Help: "Current number of watch keys with a held snapshot",
		},
	)

	// BuildDuration tracks snapshot build latency
	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scorepulse_snapshot_build_duration_seconds",
			Help:    "Snapshot build duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// Subscription metrics
var (
	// Subscribers tracks currently connected stream subscribers
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scorepulse_subscribers",
			Help: "Current number of connected stream subscribers",
		},
	)

	// ActiveKeys tracks watch keys with at least one subscriber
	ActiveKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scorepulse_active_keys",
			Help: "Current number of watch keys with at least one subscriber",
		},
	)

	// StreamRejectionsTotal tracks refused stream connections by reason
	StreamRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorepulse_stream_rejections_total",
			Help: "Total stream connections rejected by reason (rate_limit/global_limit/bad_key)",
		},
		[]string{"reason"},
	)
)

// Scheduler metrics
var (
	// PollIntervalSeconds tracks the interval the scheduler is currently armed with
	PollIntervalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scorepulse_poll_interval_seconds",
			Help: "Current polling interval in seconds",
		},
	)
)
