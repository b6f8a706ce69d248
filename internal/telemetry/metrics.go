// Package telemetry holds the Prometheus collectors for the proxy and the
// dashboard loops. A nil *Metrics is valid and records nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "serverdeck"

type Metrics struct {
	registry *prometheus.Registry

	proxyRequests *prometheus.CounterVec
	proxyDuration *prometheus.HistogramVec
	auditFailures prometheus.Counter

	metricsRefreshes *prometheus.CounterVec
	refreshDuration  prometheus.Histogram
	statusChecks     *prometheus.CounterVec
	activeDashboards prometheus.Gauge
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Proxy calls by outcome (success, upstream_status, unreachable, rejected).",
		}, []string{"outcome"}),
		proxyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "upstream_duration_seconds",
			Help:      "Time spent waiting for the upstream server.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "audit_write_failures_total",
			Help:      "Connection history writes that failed.",
		}),
		metricsRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "metrics_refreshes_total",
			Help:      "Per-server metrics refreshes by source (live, partial, fallback).",
		}, []string{"source"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "refresh_all_duration_seconds",
			Help:      "Wall time of a full fan-out refresh.",
			Buckets:   prometheus.DefBuckets,
		}),
		statusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "status_checks_total",
			Help:      "Liveness checks by resulting status.",
		}, []string{"status"}),
		activeDashboards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "active",
			Help:      "Per-user dashboards currently running.",
		}),
	}

	reg.MustRegister(
		m.proxyRequests,
		m.proxyDuration,
		m.auditFailures,
		m.metricsRefreshes,
		m.refreshDuration,
		m.statusChecks,
		m.activeDashboards,
	)
	return m
}

func (m *Metrics) ProxyRequest(outcome string) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) UpstreamDuration(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.proxyDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) MetricsRefresh(source string) {
	if m == nil {
		return
	}
	m.metricsRefreshes.WithLabelValues(source).Inc()
}

func (m *Metrics) RefreshAllDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
}

func (m *Metrics) StatusCheck(status string) {
	if m == nil {
		return
	}
	m.statusChecks.WithLabelValues(status).Inc()
}

func (m *Metrics) DashboardStarted() {
	if m == nil {
		return
	}
	m.activeDashboards.Inc()
}

func (m *Metrics) DashboardStopped() {
	if m == nil {
		return
	}
	m.activeDashboards.Dec()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
