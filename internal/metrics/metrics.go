// Package metrics holds the Prometheus collectors for the news service.
//
// Collectors are registered on a private registry so several pages can run
// in one process (tests included) without colliding on the default
// registry. [Metrics.Handler] serves that registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ntpnews"

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	// store metrics
	StoreUpdates   prometheus.Counter
	StoreListeners prometheus.Gauge

	// feed metrics
	FeedLoads        *prometheus.CounterVec
	FeedLoadDuration prometheus.Histogram

	// action metrics
	Actions *prometheus.CounterVec

	// transport metrics
	SSEClients    prometheus.Gauge
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// backend metrics
	BackendRequests *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StoreUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_updates_total",
			Help:      "Total number of state updates applied to the store",
		}),
		StoreListeners: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_listeners",
			Help:      "Number of listeners currently registered on the store",
		}),

		FeedLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_loads_total",
			Help:      "Feed loads by outcome",
		}, []string{"outcome"}),
		FeedLoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_load_duration_seconds",
			Help:      "Time taken to fetch and apply a feed",
			Buckets:   prometheus.DefBuckets,
		}),

		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions invoked by clients, by name and outcome",
		}, []string{"action", "outcome"}),

		SSEClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_clients",
			Help:      "Number of connected SSE clients",
		}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of open WebSocket connections",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type",
		}, []string{"direction", "type"}),

		BackendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Requests made to the remote news service, by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
	}
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordFeedLoad records a finished feed load.
func (m *Metrics) RecordFeedLoad(outcome string, elapsed time.Duration) {
	m.FeedLoads.WithLabelValues(outcome).Inc()
	m.FeedLoadDuration.Observe(elapsed.Seconds())
}

// RecordAction records an action invocation. err nil counts as success.
func (m *Metrics) RecordAction(name string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Actions.WithLabelValues(name, outcome).Inc()
}

// RecordStoreUpdate records one store notification and the listener count
// at that time.
func (m *Metrics) RecordStoreUpdate(listeners int) {
	m.StoreUpdates.Inc()
	m.StoreListeners.Set(float64(listeners))
}

// RecordBackendRequest records a request to the remote news service.
func (m *Metrics) RecordBackendRequest(endpoint string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.BackendRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordWSMessage records a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}
