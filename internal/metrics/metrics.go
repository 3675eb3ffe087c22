package metrics

import (
	"time"
)

// RecordSyncRun records a completed sync run.
func (r *Registry) RecordSyncRun(result string, synced, failed int, duration time.Duration) {
	r.SyncRunsTotal.WithLabelValues(result).Inc()
	if result == "coalesced" {
		return
	}
	r.SyncRunDuration.Observe(duration.Seconds())
	r.ActionsReplayedTotal.WithLabelValues("synced").Add(float64(synced))
	r.ActionsReplayedTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordEnqueue records an action added to the pending queue.
func (r *Registry) RecordEnqueue(reason string) {
	r.ActionsEnqueuedTotal.WithLabelValues(reason).Inc()
}

// SetPendingActions sets the queue depth gauge.
func (r *Registry) SetPendingActions(n int) {
	r.PendingActions.Set(float64(n))
}

// SetOnline records the connectivity state. Pass transition=false for the
// initial state so it is not counted as a transition.
func (r *Registry) SetOnline(online, transition bool) {
	state := "offline"
	if online {
		state = "online"
		r.Online.Set(1)
	} else {
		r.Online.Set(0)
	}
	if transition {
		r.ConnectivityTransitions.WithLabelValues(state).Inc()
	}
}

// RecordCacheOperation records a cache facade operation.
func (r *Registry) RecordCacheOperation(operation, partition string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.CacheOperationsTotal.WithLabelValues(operation, partition, status).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
