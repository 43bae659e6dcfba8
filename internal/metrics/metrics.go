// Package metrics wraps the Prometheus collectors shared by the API and
// worker services. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service collectors on a private registry.
type Collector struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	jobsTotal    *prometheus.CounterVec
	jobsEnqueued *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector; service labels the HTTP metrics namespace.
func NewCollector(service string) *Collector {
	if service == "" {
		service = "service"
	}
	service = strings.ReplaceAll(service, "-", "_")

	c := &Collector{registry: prometheus.NewRegistry()}

	c.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent",
			Name:      "dispatch_total",
			Help:      "Total number of orchestrator dispatches.",
		},
		[]string{"type", "outcome"},
	)

	c.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agent",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of agent service calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"type"},
	)

	c.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "worker",
			Name:      "jobs_total",
			Help:      "Total number of jobs processed by workers.",
		},
		[]string{"type", "outcome"},
	)

	c.jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queue",
			Name:      "jobs_enqueued_total",
			Help:      "Total number of jobs enqueued.",
		},
		[]string{"type", "priority"},
	)

	c.queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "queue",
			Name:      "jobs",
			Help:      "Number of retained jobs per state.",
		},
		[]string{"state"},
	)

	c.httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: service,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: service,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	c.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: service,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	c.registry.MustRegister(
		c.dispatchTotal,
		c.dispatchDuration,
		c.jobsTotal,
		c.jobsEnqueued,
		c.queueDepth,
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return c
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler exposes the registered metrics
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordDispatch records one orchestrator dispatch
func (c *Collector) RecordDispatch(taskType, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(taskType, outcome).Inc()
	c.dispatchDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordJob records one processed job
func (c *Collector) RecordJob(taskType, outcome string) {
	if c == nil {
		return
	}
	c.jobsTotal.WithLabelValues(taskType, outcome).Inc()
}

// RecordEnqueue records one enqueued job
func (c *Collector) RecordEnqueue(taskType, priority string) {
	if c == nil {
		return
	}
	c.jobsEnqueued.WithLabelValues(taskType, priority).Inc()
}

// SetQueueDepth replaces the per-state job gauges
func (c *Collector) SetQueueDepth(counts map[string]int) {
	if c == nil {
		return
	}
	for state, n := range counts {
		c.queueDepth.WithLabelValues(state).Set(float64(n))
	}
}

// GinMiddleware records request count and latency by route template
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if c == nil || ctx.Request.URL.Path == "/metrics" {
			ctx.Next()
			return
		}

		start := time.Now()
		c.httpInFlight.Inc()
		defer c.httpInFlight.Dec()

		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := ctx.Request.Method

		c.httpRequests.WithLabelValues(method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
