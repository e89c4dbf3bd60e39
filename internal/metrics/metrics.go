package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/septivank/sensor-monitor-worker/internal/model"
)

// Metrics holds the collectors of the worker. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ingestsTotal      *prometheus.CounterVec
	readingsStored    prometheus.Counter
	alertsTotal       *prometheus.CounterVec
	reconcilesTotal   *prometheus.CounterVec
	remoteErrors      *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	lastCycleSuccess  prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry so that several
// instances can coexist.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ingestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_ingests_total",
			Help: "Snapshot ingests by source and outcome.",
		}, []string{"source", "outcome"}),
		readingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensor_readings_stored_total",
			Help: "Readings committed to the local store.",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_alerts_total",
			Help: "Readings stored outside their threshold range, by sensor type.",
		}, []string{"sensor_type"}),
		reconcilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_reconciles_total",
			Help: "Reconciliations by outcome (ingested, skipped, no_remote, failed).",
		}, []string{"outcome"}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remote_errors_total",
			Help: "Failed remote store calls by operation.",
		}, []string{"op"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_cycle_duration_seconds",
			Help:    "Histogram of worker cycle durations.",
			Buckets: prometheus.DefBuckets,
		}),
		lastCycleSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_last_cycle_success",
			Help: "1 when the most recent worker cycle succeeded, 0 otherwise.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.ingestsTotal,
		m.readingsStored,
		m.alertsTotal,
		m.reconcilesTotal,
		m.remoteErrors,
		m.cycleDuration,
		m.lastCycleSuccess,
	)

	return m
}

// Registry exposes the registry for tests and additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IngestSucceeded counts a committed batch and its alerting readings.
func (m *Metrics) IngestSucceeded(source string, readings []model.Reading) {
	if m == nil {
		return
	}
	m.ingestsTotal.WithLabelValues(source, "ok").Inc()
	m.readingsStored.Add(float64(len(readings)))
	for _, r := range readings {
		if r.IsAlert {
			m.alertsTotal.WithLabelValues(r.SensorType).Inc()
		}
	}
}

func (m *Metrics) IngestFailed(source string) {
	if m == nil {
		return
	}
	m.ingestsTotal.WithLabelValues(source, "failed").Inc()
}

func (m *Metrics) Reconciled(outcome string) {
	if m == nil {
		return
	}
	m.reconcilesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RemoteError(op string) {
	if m == nil {
		return
	}
	m.remoteErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) WorkerCycle(duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(duration.Seconds())
	if success {
		m.lastCycleSuccess.Set(1)
	} else {
		m.lastCycleSuccess.Set(0)
	}
}
