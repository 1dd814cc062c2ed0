package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_ops_total",
			Help: "Cache operations by type and outcome.",
		},
		[]string{"op", "outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of cache operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by outcome.",
		},
		[]string{"outcome"},
	)

	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidations_total",
			Help: "Invalidation events by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	invalidationKeysDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invalidation_keys_deleted_total",
			Help: "Cache keys deleted by invalidation events.",
		},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cacheOpsTotal.WithLabelValues(op, outcome).Inc()
	cacheOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func AddCacheHits(n int) {
	cacheResults.WithLabelValues("hit").Add(float64(n))
}

func AddCacheMisses(n int) {
	cacheResults.WithLabelValues("miss").Add(float64(n))
}

func ObserveInvalidation(op string, keysDeleted int, dur time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	invalidationsTotal.WithLabelValues(op, outcome).Inc()
	if keysDeleted > 0 {
		invalidationKeysDeleted.Add(float64(keysDeleted))
	}
	upstreamLatencySeconds.WithLabelValues("kafka").Observe(dur.Seconds())
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
