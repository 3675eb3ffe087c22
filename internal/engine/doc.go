// Package engine implements the sync coordinator.
//
// A sync run takes one snapshot of the pending-action queue and replays the
// actions strictly in ascending id order through a Deliverer. Each action is
// handled independently:
//
//   - delivered: acknowledged (deleted from the queue), counted as synced
//   - failed: logged, left queued for the next run, counted as failed
//
// A failure never stops the run. Actions enqueued while a run is in flight
// wait for the next run.
//
// At most one run is active at a time. A run requested while another is in
// flight returns immediately with Coalesced set; it is not queued.
//
// The connectivity monitor calls Trigger on every offline to online
// transition.
package engine
