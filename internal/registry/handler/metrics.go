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
	credRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credanchor_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	credRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credanchor_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	credVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credanchor_verifications_total",
		Help: "Total verification checks by method and outcome.",
	}, []string{"method", "outcome"})

	credIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credanchor_credentials_issued_total",
		Help: "Total credentials anchored.",
	})

	credShareAccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credanchor_share_accesses_total",
		Help: "Total share link access attempts by result.",
	}, []string{"result"})

	credWebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credanchor_webhook_deliveries_total",
		Help: "Total webhook delivery attempts by outcome.",
	}, []string{"outcome"})

	credHealthProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credanchor_health_probes_total",
		Help: "Total dependency health probes by dependency and outcome.",
	}, []string{"dependency", "outcome"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
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

		credRequestsTotal.WithLabelValues(method, path, status).Inc()
		credRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordVerification records one verification check outcome.
func RecordVerification(method string, valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	credVerificationsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordIssued records one anchored credential.
func RecordIssued() {
	credIssuedTotal.Inc()
}

// RecordShareAccess records a share link access attempt.
func RecordShareAccess(result string) {
	credShareAccessTotal.WithLabelValues(result).Inc()
}

// RecordWebhookDelivery records one webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	credWebhookDeliveries.WithLabelValues(outcomeLabel(success)).Inc()
}

// RecordHealthProbe records one dependency probe result.
func RecordHealthProbe(dependency string, success bool) {
	credHealthProbes.WithLabelValues(dependency, outcomeLabel(success)).Inc()
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
