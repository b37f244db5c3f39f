package infrastructure

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pluglic",
		Subsystem: "license",
		Name:      "cache_hits_total",
		Help:      "Number of license status checks served from cache.",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pluglic",
		Subsystem: "license",
		Name:      "cache_misses_total",
		Help:      "Number of license status checks that missed the cache.",
	})

	remoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pluglic",
		Subsystem: "license",
		Name:      "remote_requests_total",
		Help:      "Remote licensing service calls by endpoint and HTTP status (0 = transport failure).",
	}, []string{"endpoint", "status"})

	remoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pluglic",
		Subsystem: "license",
		Name:      "remote_request_duration_seconds",
		Help:      "Latency of remote licensing service calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// RecordCacheHit counts a status check served from cache.
func RecordCacheHit() {
	cacheHitsTotal.Inc()
}

// RecordCacheMiss counts a status check that went to the remote service.
func RecordCacheMiss() {
	cacheMissesTotal.Inc()
}

// ObserveRemoteRequest records one remote licensing call. status 0 means
// the request failed before any response.
func ObserveRemoteRequest(endpoint string, status int, duration time.Duration) {
	remoteRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	remoteRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
