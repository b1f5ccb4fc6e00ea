package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sdxRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skilldex_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	sdxRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skilldex_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	sdxEventsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skilldex_events_enqueued_total",
		Help: "Total indexing jobs enqueued by the event poller.",
	})

	sdxSkillsIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skilldex_skills_indexed_total",
		Help: "Total skill documents ingested or re-ingested.",
	})

	sdxDownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skilldex_downloads_total",
		Help: "Total skill ZIP downloads served.",
	})

	sdxHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skilldex_health_checks_total",
		Help: "Total health check probes by result.",
	}, []string{"result"})
)

// PrometheusMiddleware records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		sdxRequestsTotal.WithLabelValues(method, path, status).Inc()
		sdxRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordEnqueued counts one indexing job enqueued by the poller.
func RecordEnqueued() { sdxEventsEnqueuedTotal.Inc() }

// RecordIndexed counts one skill ingested.
func RecordIndexed() { sdxSkillsIndexedTotal.Inc() }

// RecordDownload counts one ZIP download.
func RecordDownload() { sdxDownloadsTotal.Inc() }

// RecordHealthCheck records a health probe result.
func RecordHealthCheck(success bool) {
	if success {
		sdxHealthChecksTotal.WithLabelValues("success").Inc()
	} else {
		sdxHealthChecksTotal.WithLabelValues("failure").Inc()
	}
}
