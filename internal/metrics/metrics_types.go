// Package metrics holds the Prometheus metrics for the cache, the sync
// coordinator, connectivity and the local API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application
type Registry struct {
	// Sync Metrics
	SyncRunsTotal        *prometheus.CounterVec
	SyncRunDuration      prometheus.Histogram
	ActionsReplayedTotal *prometheus.CounterVec

	// Queue Metrics
	PendingActions       prometheus.Gauge
	ActionsEnqueuedTotal *prometheus.CounterVec

	// Connectivity Metrics
	Online                  prometheus.Gauge
	ConnectivityTransitions *prometheus.CounterVec

	// Cache Metrics
	CacheOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
// Each registry is independent, so tests never collide on registration.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initSyncMetrics()
	r.initQueueMetrics()
	r.initConnectivityMetrics()
	r.initCacheMetrics()
	r.initHTTPMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
