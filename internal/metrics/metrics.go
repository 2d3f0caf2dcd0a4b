// Package metrics exposes pipeline and HTTP counters in Prometheus format.
//
// All collectors live on a private registry so tests and multiple servers in
// one process do not collide. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edge"

// Recorder owns the registry and every collector.
type Recorder struct {
	reg *prometheus.Registry

	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	rows          *prometheus.CounterVec
	fieldFailures *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Import and export jobs by type and final status.",
		}, []string{"type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of import and export jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"type"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows processed by the pipeline, by outcome (valid, invalid, rejected).",
		}, []string{"outcome"}),
		fieldFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_failures_total",
			Help:      "Field-level transform failures and validation failures.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		r.jobs, r.jobDuration, r.rows, r.fieldFailures, r.httpRequests, r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// JobFinished counts a finished job and observes its duration.
func (r *Recorder) JobFinished(jobType, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.jobs.WithLabelValues(jobType, status).Inc()
	r.jobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

// Rows adds n rows with the given outcome.
func (r *Recorder) Rows(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.rows.WithLabelValues(outcome).Add(float64(n))
}

// FieldFailures adds n failures of kind "transform" or "validation".
func (r *Recorder) FieldFailures(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.fieldFailures.WithLabelValues(kind).Add(float64(n))
}

// ObserveRequest records one HTTP request. route should be the router
// pattern, not the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
