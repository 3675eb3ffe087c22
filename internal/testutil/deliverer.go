package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/civicsync/internal/record"
)

// ErrScriptedFailure is the default error returned for scripted failures.
var ErrScriptedFailure = errors.New("scripted delivery failure")

// ScriptedDeliverer is an in-memory network deliverer for tests.
//
// By default every delivery succeeds. Failures are scripted per action id
// or with a predicate, and the deliverer can be made offline as a whole.
// Successful deliveries are recorded in order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ScriptedDeliverer struct {
	mu        sync.Mutex
	failIDs   map[int64]error
	failIf    []func(record.PendingAction) bool
	down      error
	delivered []record.PendingAction
	attempts  []int64
	gate      chan struct{}
	started   chan int64
}

// NewScriptedDeliverer creates a deliverer where every delivery succeeds.
func NewScriptedDeliverer() *ScriptedDeliverer {
	return &ScriptedDeliverer{
		failIDs: make(map[int64]error),
		started: make(chan int64, 64),
	}
}

// FailAction makes deliveries of action id fail with err (or
// ErrScriptedFailure when err is nil) until Succeed is called.
func (d *ScriptedDeliverer) FailAction(id int64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		err = ErrScriptedFailure
	}
	d.failIDs[id] = err
}

// FailIf makes every action matching pred fail with ErrScriptedFailure.
func (d *ScriptedDeliverer) FailIf(pred func(record.PendingAction) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failIf = append(d.failIf, pred)
}

// Succeed clears every scripted failure and brings the deliverer back up.
func (d *ScriptedDeliverer) Succeed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failIDs = make(map[int64]error)
	d.failIf = nil
	d.down = nil
}

// SetDown makes every delivery fail with err; nil brings it back up.
func (d *ScriptedDeliverer) SetDown(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down = err
}

// Hold makes Deliver block until the returned release function is called.
// Started reports each action id as its delivery begins.
func (d *ScriptedDeliverer) Hold() (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	gate := make(chan struct{})
	d.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.gate == gate {
				d.gate = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

// Started returns a channel that receives each action id as its delivery
// begins.
func (d *ScriptedDeliverer) Started() <-chan int64 {
	return d.started
}

// Deliver implements the sync coordinator's deliverer.
func (d *ScriptedDeliverer) Deliver(ctx context.Context, action record.PendingAction) error {
	d.mu.Lock()
	d.attempts = append(d.attempts, action.ID)
	gate := d.gate
	d.mu.Unlock()

	select {
	case d.started <- action.ID:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down != nil {
		return d.down
	}
	if err, ok := d.failIDs[action.ID]; ok {
		return err
	}
	for _, pred := range d.failIf {
		if pred(action) {
			return ErrScriptedFailure
		}
	}
	d.delivered = append(d.delivered, action)
	return nil
}

// Delivered returns the successfully delivered actions in order.
func (d *ScriptedDeliverer) Delivered() []record.PendingAction {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]record.PendingAction, len(d.delivered))
	copy(out, d.delivered)
	return out
}

// DeliveredIDs returns the ids of successfully delivered actions in order.
func (d *ScriptedDeliverer) DeliveredIDs() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int64, 0, len(d.delivered))
	for _, a := range d.delivered {
		ids = append(ids, a.ID)
	}
	return ids
}

// Attempts returns the ids of every delivery attempt in order.
func (d *ScriptedDeliverer) Attempts() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int64, len(d.attempts))
	copy(out, d.attempts)
	return out
}
