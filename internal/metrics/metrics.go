package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "product_sync"

// Metrics holds the collectors of one process on its own registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	versionedWrites  *prometheus.CounterVec
	conflictsFound   prometheus.Counter
	bulkItems        *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	syncCycles       *prometheus.CounterVec
	lastSyncDuration prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		versionedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versioned_writes_total",
			Help:      "Version-checked writes by outcome.",
		}, []string{"outcome"}),
		conflictsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Conflict descriptors produced by conflict detection.",
		}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_update_items_total",
			Help:      "Bulk update items by result.",
		}, []string{"result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Conflict resolutions by applied strategy.",
		}, []string{"strategy"}),
		syncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Client sync cycles by result.",
		}, []string{"result"}),
		lastSyncDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_duration_seconds",
			Help:      "Duration of the most recent client sync cycle.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.versionedWrites,
		m.conflictsFound,
		m.bulkItems,
		m.resolutions,
		m.syncCycles,
		m.lastSyncDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) VersionedWrite(outcome string) {
	if m == nil {
		return
	}
	m.versionedWrites.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConflictsDetected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflictsFound.Add(float64(n))
}

func (m *Metrics) BulkItems(updated, conflicts, failures int) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues("updated").Add(float64(updated))
	m.bulkItems.WithLabelValues("conflict").Add(float64(conflicts))
	m.bulkItems.WithLabelValues("failure").Add(float64(failures))
}

func (m *Metrics) Resolution(strategy string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(strategy).Inc()
}

func (m *Metrics) SyncCycle(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.syncCycles.WithLabelValues(result).Inc()
	m.lastSyncDuration.Set(elapsed.Seconds())
}
