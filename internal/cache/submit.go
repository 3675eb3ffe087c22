package cache

import (
	"context"

	"github.com/roach88/civicsync/internal/engine"
	"github.com/roach88/civicsync/internal/record"
)

// SubmitStatus is the outcome of Submit.
type SubmitStatus string

const (
	// StatusDelivered means the server confirmed the mutation.
	StatusDelivered SubmitStatus = "delivered"
	// StatusQueued means the mutation is durably queued for replay.
	StatusQueued SubmitStatus = "queued"
)

// Reasons a mutation was queued.
const (
	ReasonOffline        = "offline"
	ReasonDeliveryFailed = "delivery_failed"
	ReasonBehindQueue    = "behind_queue"
	ReasonManual         = "manual"
)

// SubmitResult reports what Submit did with a mutation.
type SubmitResult struct {
	Status   SubmitStatus `json:"status"`
	ActionID int64        `json:"actionId,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Submit is the mutation path.
//
// Offline, the payload is queued. Online with an empty queue, it is
// delivered once; a delivery failure is logged and the payload queued under
// the idempotency key already sent. Online with actions still queued, it is
// queued behind them and a sync is triggered, so replay order matches
// submission order.
//
// The error is only ever a storage error.
func (c *Cache) Submit(ctx context.Context, payload record.Record) (SubmitResult, error) {
	if payload == nil {
		payload = record.Record{}
	}

	if !c.monitor.Online() {
		return c.enqueue(ctx, payload, c.queue.NewKey(), ReasonOffline, "")
	}

	pending, err := c.queue.Len(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	if pending > 0 {
		res, err := c.enqueue(ctx, payload, c.queue.NewKey(), ReasonBehindQueue, "")
		if err == nil {
			c.engine.Trigger()
		}
		return res, err
	}

	key := c.queue.NewKey()
	attempt := record.PendingAction{
		Payload:        payload,
		Timestamp:      c.queue.Now(),
		IdempotencyKey: key,
	}
	if err := c.deliverer.Deliver(ctx, attempt); err != nil {
		c.logger.Warn("direct delivery failed, queueing", "error", err)
		// The caller may have gone away mid-delivery; the payload is still
		// queued.
		return c.enqueue(context.WithoutCancel(ctx), payload, key, ReasonDeliveryFailed, err.Error())
	}
	c.logger.Debug("mutation delivered")
	return SubmitResult{Status: StatusDelivered}, nil
}

// QueueAction queues payload unconditionally.
func (c *Cache) QueueAction(ctx context.Context, payload record.Record) (record.PendingAction, error) {
	a, err := c.queue.Enqueue(ctx, payload)
	c.afterEnqueue(ctx, ReasonManual, err)
	return a, err
}

// PendingActions returns the queued actions in replay order.
func (c *Cache) PendingActions(ctx context.Context) ([]record.PendingAction, error) {
	actions, err := c.queue.Snapshot(ctx)
	c.observe("list", record.PendingActions, err)
	return actions, err
}

// PendingAction returns the queued action with the given id, if it is still
// waiting for delivery.
func (c *Cache) PendingAction(ctx context.Context, id int64) (record.PendingAction, bool, error) {
	a, found, err := c.queue.Get(ctx, id)
	c.observe("get", record.PendingActions, err)
	return a, found, err
}

// SyncPendingActions drains the queue now. Offline it reports failure with
// Error "offline" and leaves the queue untouched.
func (c *Cache) SyncPendingActions(ctx context.Context) engine.Result {
	if !c.monitor.Online() {
		return engine.Result{Success: false, Error: ReasonOffline}
	}
	return c.engine.Run(ctx)
}

// ClearPendingActions is the explicit manual clear of the queue.
func (c *Cache) ClearPendingActions(ctx context.Context) error {
	err := c.queue.Clear(ctx)
	c.observe("clear", record.PendingActions, err)
	if err != nil {
		return err
	}
	c.logger.Info("pending actions cleared")
	if c.metrics != nil {
		c.metrics.SetPendingActions(0)
	}
	return nil
}

func (c *Cache) enqueue(ctx context.Context, payload record.Record, key, reason, deliveryErr string) (SubmitResult, error) {
	a, err := c.queue.EnqueueWithKey(ctx, payload, key)
	c.afterEnqueue(ctx, reason, err)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		Status:   StatusQueued,
		ActionID: a.ID,
		Reason:   reason,
		Error:    deliveryErr,
	}, nil
}

func (c *Cache) afterEnqueue(ctx context.Context, reason string, err error) {
	c.observe("enqueue", record.PendingActions, err)
	if err != nil {
		c.logger.Error("failed to queue action", "reason", reason, "error", err)
		return
	}
	c.logger.Info("action queued", "reason", reason)
	if c.metrics != nil {
		c.metrics.RecordEnqueue(reason)
		if n, err := c.queue.Len(ctx); err == nil {
			c.metrics.SetPendingActions(n)
		}
	}
}
