// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the collector set, registered once on the default registry.
type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	Executions      *prometheus.CounterVec
	Submissions     *prometheus.CounterVec
	ActiveSandboxes prometheus.Gauge
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton collector set.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "judge_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			}, []string{"method", "route", "status"}),
			HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "judge_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),
			Executions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "judge_executions_total",
				Help: "Sandbox executions by outcome.",
			}, []string{"outcome"}),
			Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "judge_submissions_total",
				Help: "Graded submissions by verdict.",
			}, []string{"verdict"}),
			ActiveSandboxes: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "judge_active_sandboxes",
				Help: "Sandboxes currently open.",
			}),
		}
	})
	return instance
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the /metrics scrape endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
