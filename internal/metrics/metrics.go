package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several servers (and tests) can live
// in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	storedEvents      prometheus.Gauge
	availabilityCheck *prometheus.CounterVec
	imports           *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learncal_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "learncal_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		storedEvents: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "learncal_events_stored",
				Help: "Number of events currently in the store",
			},
		),
		availabilityCheck: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learncal_availability_checks_total",
				Help: "Availability checks by outcome",
			},
			[]string{"result"},
		),
		imports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learncal_imports_total",
				Help: "Calendar imports by format and outcome",
			},
			[]string{"format", "result"},
		),
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learncal_job_runs_total",
				Help: "Background job runs by job and outcome",
			},
			[]string{"job", "result"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	m.requests.WithLabelValues(route, method, status).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) SetStoredEvents(n int) {
	m.storedEvents.Set(float64(n))
}

func (m *Metrics) TrackAvailability(available bool) {
	m.availabilityCheck.WithLabelValues(outcome(available, "available", "conflict")).Inc()
}

func (m *Metrics) TrackImport(format string, ok bool) {
	m.imports.WithLabelValues(format, outcome(ok, "success", "failure")).Inc()
}

func (m *Metrics) TrackJob(job string, ok bool) {
	m.jobRuns.WithLabelValues(job, outcome(ok, "success", "failure")).Inc()
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
