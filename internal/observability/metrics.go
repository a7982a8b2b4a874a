package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "momento_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// PostsIngested counts posts created by media kind.
	PostsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_posts_ingested_total",
		Help: "Posts created through the ingestion handler",
	}, []string{"media_kind"})

	// UploadsRejected counts uploads refused by the validation gate.
	UploadsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_uploads_rejected_total",
		Help: "Uploads rejected before any state was created",
	}, []string{"media_kind"})

	// LifecycleTransitions counts applied post state transitions.
	LifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_lifecycle_transitions_total",
		Help: "Post lifecycle transitions by field and target state",
	}, []string{"field", "to"})

	// ModerationVerdicts counts classifier outcomes.
	ModerationVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_moderation_verdicts_total",
		Help: "Moderation outcomes: approved, flagged, error or rejected by the open circuit",
	}, []string{"outcome"})

	// ModerationLatency records classifier round trip time.
	ModerationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "momento_moderation_latency_seconds",
		Help:    "Classifier call latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// TranscodeJobs counts transcoding job events (dispatched, dispatch_failed, completed, failed).
	TranscodeJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_transcode_jobs_total",
		Help: "Transcoding job events",
	}, []string{"event"})

	// RenditionsRecorded counts renditions persisted per quality tier.
	RenditionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_renditions_recorded_total",
		Help: "Renditions recorded per quality",
	}, []string{"quality"})

	// EngagementApplied counts aggregator calls by counter.
	EngagementApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_engagement_applied_total",
		Help: "Engagement deltas applied, by counter and sign",
	}, []string{"counter", "sign"})

	// EdgeMutations counts social graph edge changes, including no-ops.
	EdgeMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_edge_mutations_total",
		Help: "Relationship edge mutations by kind, action and whether the edge changed",
	}, []string{"kind", "action", "changed"})

	// FeedLatency records feed assembly time by feed type.
	FeedLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "momento_feed_assembly_seconds",
		Help:    "Feed assembly latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// CacheLookups counts post snapshot cache hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_cache_lookups_total",
		Help: "Cache-aside lookups by result",
	}, []string{"result"})

	// CircuitBreakerState reports breaker state per upstream (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "momento_circuit_breaker_state",
		Help: "Circuit breaker state by upstream",
	}, []string{"upstream"})

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momento_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions",
	}, []string{"upstream", "from", "to"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// ObserveSince records the time elapsed since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
