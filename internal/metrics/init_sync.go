package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSyncMetrics() {
	r.SyncRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsync_sync_runs_total",
			Help: "Total number of sync runs",
		},
		[]string{"result"}, // success, failure, coalesced
	)

	r.SyncRunDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "civicsync_sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)

	r.ActionsReplayedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsync_actions_replayed_total",
			Help: "Total number of pending actions replayed, by outcome",
		},
		[]string{"outcome"}, // synced, failed
	)
}

func (r *Registry) initQueueMetrics() {
	r.PendingActions = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "civicsync_pending_actions",
			Help: "Number of actions waiting in the pending queue",
		},
	)

	r.ActionsEnqueuedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsync_actions_enqueued_total",
			Help: "Total number of actions added to the pending queue",
		},
		[]string{"reason"}, // offline, delivery_failed, manual
	)
}

func (r *Registry) initConnectivityMetrics() {
	r.Online = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "civicsync_online",
			Help: "Whether the client believes it is online (1=yes, 0=no)",
		},
	)

	r.ConnectivityTransitions = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicsync_connectivity_transitions_total",
			Help: "Total number of connectivity transitions",
		},
		[]string{"state"}, // online, offline
	)
}
