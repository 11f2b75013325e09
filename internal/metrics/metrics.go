// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "canonstore"

// Metrics owns a private registry so tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	Uploads        *prometheus.CounterVec
	ObjectStoreOps *prometheus.CounterVec
	ObjectRetries  *prometheus.CounterVec
	Compensations  *prometheus.CounterVec
	SweepRuns      *prometheus.CounterVec
	SweepDeleted   *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploaded items by family and outcome (created, dedup, failed).",
		}, []string{"family", "outcome"}),
		ObjectStoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_store_ops_total",
			Help:      "Object store calls by operation and result.",
		}, []string{"op", "result"}),
		ObjectRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_store_retries_total",
			Help:      "Retried object store calls by operation.",
		}, []string{"op"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_compensations_total",
			Help:      "Compensating object deletes issued by the commit coordinator.",
		}, []string{"reason"}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Reconciler runs by result.",
		}, []string{"result"}),
		SweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Objects reclaimed by the reconciler by kind (orphan, stray).",
		}, []string{"kind"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Reconciler run duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Uploads,
		m.ObjectStoreOps,
		m.ObjectRetries,
		m.Compensations,
		m.SweepRuns,
		m.SweepDeleted,
		m.SweepDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObjectStoreOp implements blobstore.Observer.
func (m *Metrics) ObjectStoreOp(op, result string) {
	if m == nil {
		return
	}
	m.ObjectStoreOps.WithLabelValues(op, result).Inc()
}

// ObjectStoreRetry implements blobstore.Observer.
func (m *Metrics) ObjectStoreRetry(op string) {
	if m == nil {
		return
	}
	m.ObjectRetries.WithLabelValues(op).Inc()
}

// Upload counts one uploaded item.
func (m *Metrics) Upload(family, outcome string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(family, outcome).Inc()
}

// Compensation counts one compensating delete.
func (m *Metrics) Compensation(reason string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(reason).Inc()
}

// Sweep records the outcome of one reconciler run.
func (m *Metrics) Sweep(result string, orphans, strays int, seconds float64) {
	if m == nil {
		return
	}
	m.SweepRuns.WithLabelValues(result).Inc()
	if orphans > 0 {
		m.SweepDeleted.WithLabelValues("orphan").Add(float64(orphans))
	}
	if strays > 0 {
		m.SweepDeleted.WithLabelValues("stray").Add(float64(strays))
	}
	m.SweepDuration.Observe(seconds)
}
