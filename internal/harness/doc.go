// Package harness runs YAML scenarios against a fully wired cache and checks
// the resulting trace and final state.
//
// # Scenario Format
//
//	name: offline_then_online
//	description: "Actions queued offline replay in order on reconnect"
//	online: false
//	steps:
//	  - action: submit
//	    payload: { op: rsvp, event: e1 }
//	    expect: { status: queued, actionId: 1 }
//	  - action: signal
//	    online: true
//	assertions:
//	  - type: delivered_keys
//	    keys: [key-1]
//	  - type: pending_count
//	    count: 0
//
// # Step Actions
//
//   - cache_records: upsert records into a partition
//   - delete_record: delete one record by key
//   - clear_cache: clear the cache partitions
//   - submit: run the mutation path with a payload
//   - queue_action: queue a payload without delivery
//   - sync: run an on-demand sync
//   - signal: deliver a connectivity signal (and wait for the sync it triggers)
//   - fail_action: make deliveries of one action id fail
//   - delivery_down / delivery_up: make every delivery fail, or clear all failures
//   - clear_queue: drop every pending action
//
// An expect map on a step is matched as a subset of the step's JSON result.
//
// # Assertion Types
//
//   - delivered_keys: idempotency keys delivered, in delivery order
//   - pending_keys: idempotency keys still queued, in replay order
//   - pending_count: number of queued actions
//   - record_count: number of records in a partition
//   - record: one record matches expect (subset), or is absent
//   - stats: cache statistics match expect (subset)
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory database with a step clock
// and sequential idempotency keys ("key-1", "key-2", ...), and every step
// waits for the syncs it triggers. Traces are therefore identical across
// runs and can be compared against golden files.
package harness
