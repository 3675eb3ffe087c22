// Package queue implements the durable pending-action queue.
//
// The queue is a FIFO over the store's pendingActions partition. Ids come
// from a persisted counter and are strictly increasing; they are never
// reused, even after deletes or a restart. Nothing in this package removes
// an action except Acknowledge (confirmed replay) and Clear (manual clear).
package queue

import (
	"context"
	"iter"
	"time"

	"github.com/roach88/civicsync/internal/record"
	"github.com/roach88/civicsync/internal/store"
)

// defaultPageSize bounds how many actions Drain reads per store query.
const defaultPageSize = 64

// Queue is the durable FIFO of pending actions.
type Queue struct {
	store    *store.Store
	now      func() time.Time
	keys     KeyGenerator
	pageSize int
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used to timestamp enqueued actions.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithKeyGenerator sets the idempotency key generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(q *Queue) {
		q.keys = g
	}
}

// WithPageSize sets how many actions Drain reads per page.
func WithPageSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.pageSize = n
		}
	}
}

// New creates a queue over s.
func New(s *store.Store, opts ...Option) *Queue {
	q := &Queue{
		store:    s,
		now:      time.Now,
		keys:     UUIDv7Generator{},
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue durably appends payload with a fresh id, the current time and a
// new idempotency key.
func (q *Queue) Enqueue(ctx context.Context, payload record.Record) (record.PendingAction, error) {
	return q.EnqueueWithKey(ctx, payload, q.keys.Generate())
}

// EnqueueWithKey appends payload under an idempotency key the caller already
// used, e.g. for a direct delivery attempt that failed.
func (q *Queue) EnqueueWithKey(ctx context.Context, payload record.Record, key string) (record.PendingAction, error) {
	if payload == nil {
		payload = record.Record{}
	}
	return q.store.AppendPendingAction(ctx, payload, q.now(), key)
}

// NewKey returns a fresh idempotency key from the queue's generator.
func (q *Queue) NewKey() string {
	return q.keys.Generate()
}

// Now returns the queue clock's current time.
func (q *Queue) Now() time.Time {
	return q.now()
}

// Drain yields queued actions in ascending id order, one store page at a
// time. It never deletes; breaking out of the loop is always safe and a
// later Drain starts again from the oldest action.
//
// Actions enqueued while iterating may be yielded if their ids fall in a
// page not yet read. Use Snapshot for a fixed view.
func (q *Queue) Drain(ctx context.Context) iter.Seq2[record.PendingAction, error] {
	return func(yield func(record.PendingAction, error) bool) {
		var after int64
		for {
			if err := ctx.Err(); err != nil {
				yield(record.PendingAction{}, err)
				return
			}
			page, err := q.store.PendingActionsAfter(ctx, after, q.pageSize)
			if err != nil {
				yield(record.PendingAction{}, err)
				return
			}
			for _, a := range page {
				if !yield(a, nil) {
					return
				}
				after = a.ID
			}
			if len(page) < q.pageSize {
				return
			}
		}
	}
}

// Snapshot returns every queued action at call time in ascending id order.
// Returns an empty slice, never nil.
func (q *Queue) Snapshot(ctx context.Context) ([]record.PendingAction, error) {
	return q.store.PendingActionsAfter(ctx, 0, 0)
}

// Get returns the queued action with the given id.
func (q *Queue) Get(ctx context.Context, id int64) (record.PendingAction, bool, error) {
	return q.store.PendingAction(ctx, id)
}

// Acknowledge removes an action after its replay was confirmed.
func (q *Queue) Acknowledge(ctx context.Context, id int64) error {
	return q.store.DeletePendingAction(ctx, id)
}

// Len returns the number of queued actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.Count(ctx, record.PendingActions)
}

// Clear removes every queued action. This is the explicit manual clear; the
// id counter is not reset.
func (q *Queue) Clear(ctx context.Context) error {
	return q.store.Clear(ctx, record.PendingActions)
}
