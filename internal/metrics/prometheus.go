package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCount counts HTTP requests
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	// ChecksTotal counts checks that reached a terminal status
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labcheck_checks_total",
			Help: "Total number of finished similarity checks",
		},
		[]string{"status"},
	)

	// CheckDuration measures how long one check job runs
	CheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "labcheck_check_duration_seconds",
			Help:    "Similarity check duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// CandidatesCompared counts pairwise comparisons
	CandidatesCompared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labcheck_candidates_compared_total",
			Help: "Total number of report pairs scored",
		},
	)

	// StreamEvents counts ingestion stream messages by outcome
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labcheck_stream_events_total",
			Help: "Total number of ingestion stream messages handled",
		},
		[]string{"outcome"},
	)
)

// InitPrometheus registers the collectors. queueDepth reports the number of
// jobs waiting in the check queue.
func InitPrometheus(queueDepth func() int) {
	prometheus.MustRegister(RequestCount)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ChecksTotal)
	prometheus.MustRegister(CheckDuration)
	prometheus.MustRegister(CandidatesCompared)
	prometheus.MustRegister(StreamEvents)
	if queueDepth != nil {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "labcheck_queue_depth",
				Help: "Number of checks waiting to be processed",
			},
			func() float64 { return float64(queueDepth()) },
		))
	}
}

// MetricsHandler returns Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request count and latency by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCount.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
