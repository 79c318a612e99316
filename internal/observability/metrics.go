package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequests counts remote gateway calls by operation and table.
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_gateway_requests_total",
		Help: "Total number of gateway requests by operation and table",
	}, []string{"operation", "table"})

	// GatewayErrors counts failed gateway calls by operation, table, and
	// classified error code.
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_gateway_errors_total",
		Help: "Total number of gateway errors by operation, table, and code",
	}, []string{"operation", "table", "code"})

	// GatewayLatency records gateway round-trip latency by operation and table.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_gateway_latency_seconds",
		Help:    "Gateway request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// CacheHits counts cache-aside hits/misses by key prefix.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_cache_hits_total",
		Help: "Total cache lookups by key prefix and outcome",
	}, []string{"prefix", "outcome"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// RealtimeEvents counts realtime channel events by table and event type.
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_realtime_events_total",
		Help: "Total realtime change events by table and type",
	}, []string{"table", "event_type"})

	// FeedFallbacks counts repost-join fallbacks taken by the feed
	// synchronizer.
	FeedFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_feed_fallbacks_total",
		Help: "Total feed loads that fell back to the join-free query",
	})
)

// ObserveGateway records one gateway call: the request counter, the latency
// histogram, and the error counter when code is non-empty.
func ObserveGateway(operation, table, code string, start time.Time) {
	GatewayRequests.WithLabelValues(operation, table).Inc()
	GatewayLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if code != "" {
		GatewayErrors.WithLabelValues(operation, table, code).Inc()
	}
}

// TrackGateway returns a function that records the call when invoked (e.g.
// defer). The returned closure reads *codePtr at call time so the error code
// can be filled in after the request completes.
func TrackGateway(operation, table string, codePtr *string) func() {
	start := time.Now()
	return func() {
		code := ""
		if codePtr != nil {
			code = *codePtr
		}
		ObserveGateway(operation, table, code, start)
	}
}
