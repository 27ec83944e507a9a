package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and pipeline flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	unitsCompletedTotal *prometheus.CounterVec
	unitsFailedTotal    *prometheus.CounterVec
	pipelineDuration    *prometheus.HistogramVec
	schedulerInflight   prometheus.Gauge
	criticRetriesTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clip_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clip_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		unitsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clip_engine",
				Name:      "units_completed_total",
				Help:      "Total number of generation units that completed successfully.",
			},
			[]string{"platform"},
		),
		unitsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clip_engine",
				Name:      "units_failed_total",
				Help:      "Total number of generation units that ended in failed state.",
			},
			[]string{"platform", "reason"},
		),
		pipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "clip_engine",
				Name:      "pipeline_duration_seconds",
				Help:      "End-to-end unit pipeline duration in seconds grouped by platform.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"platform"},
		),
		schedulerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "clip_engine",
				Name:      "scheduler_inflight",
				Help:      "Current number of batch items being processed.",
			},
		),
		criticRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clip_engine",
				Name:      "critic_retries_total",
				Help:      "Total number of regeneration passes triggered by critic scores.",
			},
			[]string{"target"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.unitsCompletedTotal,
		m.unitsFailedTotal,
		m.pipelineDuration,
		m.schedulerInflight,
		m.criticRetriesTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncUnitCompleted(platform string) {
	if m == nil {
		return
	}
	m.unitsCompletedTotal.WithLabelValues(normalizePlatform(platform)).Inc()
}

func (m *Metrics) IncUnitFailed(platform string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.unitsFailedTotal.WithLabelValues(normalizePlatform(platform), reasonLabel).Inc()
}

func (m *Metrics) ObservePipelineDuration(platform string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.pipelineDuration.WithLabelValues(normalizePlatform(platform)).Observe(seconds)
}

func (m *Metrics) IncSchedulerInFlight() {
	if m == nil {
		return
	}
	m.schedulerInflight.Inc()
}

func (m *Metrics) DecSchedulerInFlight() {
	if m == nil {
		return
	}
	m.schedulerInflight.Dec()
}

func (m *Metrics) IncCriticRetry(target string) {
	if m == nil {
		return
	}
	targetLabel := strings.TrimSpace(strings.ToLower(target))
	if targetLabel == "" {
		targetLabel = "full"
	}
	m.criticRetriesTotal.WithLabelValues(targetLabel).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizePlatform(platform string) string {
	normalized := strings.ToLower(strings.TrimSpace(platform))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
