// Package metrics exposes Prometheus instrumentation for the paging engine.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsfeed"

// Metrics holds the engine's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	pagesLoaded   *prometheus.CounterVec
	itemsLoaded   *prometheus.CounterVec
	loadErrors    *prometheus.CounterVec
	loadRetries   prometheus.Counter
	loadDuration  *prometheus.HistogramVec
	discarded     prometheus.Counter
	sessions      prometheus.Gauge
	observers     prometheus.Gauge
	snapshotsSent prometheus.Counter
	evictions     prometheus.Counter
}

// New creates a Metrics with its own registry. Go runtime and process
// collectors are registered alongside the engine's.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pagesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "pages_loaded_total",
			Help:      "Pages loaded successfully, by direction",
		}, []string{"direction"}),
		itemsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "items_loaded_total",
			Help:      "Items received from the upstream, by direction",
		}, []string{"direction"}),
		loadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "load_errors_total",
			Help:      "Failed page loads, by direction and error kind",
		}, []string{"direction", "kind"}),
		loadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "load_retries_total",
			Help:      "Automatic retries of transient load failures",
		}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "load_duration_seconds",
			Help:      "Upstream page load latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"direction"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "results_discarded_total",
			Help:      "Load results dropped because their session moved on",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sessions_active",
			Help:      "Paging sessions currently held by the shared cache",
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "observers_active",
			Help:      "Attached observers across all sessions",
		}),
		snapshotsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "snapshots_published_total",
			Help:      "Snapshots published by paging sessions",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Sessions discarded after their grace period",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pagesLoaded,
		m.itemsLoaded,
		m.loadErrors,
		m.loadRetries,
		m.loadDuration,
		m.discarded,
		m.sessions,
		m.observers,
		m.snapshotsSent,
		m.evictions,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PageLoaded records a successful load.
func (m *Metrics) PageLoaded(direction string, items int, d time.Duration) {
	if m == nil {
		return
	}
	m.pagesLoaded.WithLabelValues(direction).Inc()
	m.itemsLoaded.WithLabelValues(direction).Add(float64(items))
	m.loadDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// LoadFailed records a load that ended in error.
func (m *Metrics) LoadFailed(direction, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.loadErrors.WithLabelValues(direction, kind).Inc()
	m.loadDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// LoadRetried records one automatic retry.
func (m *Metrics) LoadRetried() {
	if m == nil {
		return
	}
	m.loadRetries.Inc()
}

// ResultDiscarded records a stale load result.
func (m *Metrics) ResultDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

// SnapshotPublished records one snapshot leaving a session.
func (m *Metrics) SnapshotPublished() {
	if m == nil {
		return
	}
	m.snapshotsSent.Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// SessionEvicted records a grace-period eviction.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

// ObserverAttached increments the observer gauge.
func (m *Metrics) ObserverAttached() {
	if m == nil {
		return
	}
	m.observers.Inc()
}

// ObserverDetached decrements the observer gauge.
func (m *Metrics) ObserverDetached() {
	if m == nil {
		return
	}
	m.observers.Dec()
}
