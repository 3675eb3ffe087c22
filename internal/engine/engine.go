package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/civicsync/internal/metrics"
	"github.com/roach88/civicsync/internal/queue"
	"github.com/roach88/civicsync/internal/record"
)

// Deliverer replays one pending action against the network.
// A nil error means the server confirmed the action.
type Deliverer interface {
	Deliver(ctx context.Context, action record.PendingAction) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, action record.PendingAction) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, action record.PendingAction) error {
	return f(ctx, action)
}

// Result summarizes one sync run.
type Result struct {
	Success   bool   `json:"success"`
	Synced    int    `json:"synced"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
	Coalesced bool   `json:"coalesced,omitempty"`
}

// Engine is the sync coordinator.
//
// Thread-safety model:
//   - Run(): safe from any goroutine; concurrent calls coalesce
//   - Trigger(): safe from any goroutine, never blocks; a trigger that
//     lands during a run schedules one more run after it
//   - Wait(), LastResult(): safe from any goroutine
type Engine struct {
	queue     *queue.Queue
	deliverer Deliverer
	logger    *slog.Logger
	metrics   *metrics.Registry
	now       func() time.Time
	baseCtx   context.Context

	running atomic.Bool
	rerun   atomic.Bool
	runSeq  atomic.Int64
	pending sync.WaitGroup

	mu      sync.Mutex
	last    Result
	hasLast bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records run outcomes and queue depth in reg.
func WithMetrics(reg *metrics.Registry) EngineOption {
	return func(e *Engine) {
		e.metrics = reg
	}
}

// WithClock sets the clock used to time runs.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithContext sets the context used by runs started through Trigger.
// Cancelling it stops triggered runs after the current action.
func WithContext(ctx context.Context) EngineOption {
	return func(e *Engine) {
		e.baseCtx = ctx
	}
}

// New creates a coordinator draining q through d.
func New(q *queue.Queue, d Deliverer, opts ...EngineOption) *Engine {
	e := &Engine{
		queue:     q,
		deliverer: d,
		logger:    slog.Default(),
		now:       time.Now,
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run performs one drain of the queue and reports the outcome.
//
// Success is false only when the drain could not run: the snapshot failed
// or ctx was cancelled. Per-action delivery failures are counted in Failed
// and leave Success true.
func (e *Engine) Run(ctx context.Context) Result {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Debug("sync already in progress, coalescing")
		if e.metrics != nil {
			e.metrics.RecordSyncRun("coalesced", 0, 0, 0)
		}
		return Result{Success: true, Coalesced: true}
	}
	defer e.release()

	run := e.runSeq.Add(1)
	start := e.now()
	logger := e.logger.With("run", run)

	res := e.drain(ctx, logger)
	elapsed := e.now().Sub(start)

	logger.Info("sync run finished",
		"success", res.Success,
		"synced", res.Synced,
		"failed", res.Failed,
		"duration", elapsed,
	)

	e.mu.Lock()
	e.last = res
	e.hasLast = true
	e.mu.Unlock()

	if e.metrics != nil {
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		e.metrics.RecordSyncRun(outcome, res.Synced, res.Failed, elapsed)
		if n, err := e.queue.Len(context.WithoutCancel(ctx)); err == nil {
			e.metrics.SetPendingActions(n)
		}
	}
	return res
}

func (e *Engine) drain(ctx context.Context, logger *slog.Logger) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err.Error()}
	}

	actions, err := e.queue.Snapshot(ctx)
	if err != nil {
		logger.Error("failed to read pending actions", "error", err)
		return Result{Error: fmt.Sprintf("snapshot pending actions: %v", err)}
	}
	logger.Debug("sync run started", "pending", len(actions))

	res := Result{Success: true}
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			logger.Warn("sync run cancelled", "remaining", len(actions)-res.Synced-res.Failed)
			res.Success = false
			res.Error = err.Error()
			return res
		}

		if err := e.deliver(ctx, action); err != nil {
			logger.Warn("failed to sync action",
				"action_id", action.ID,
				"error", err,
			)
			res.Failed++
			continue
		}

		// A confirmed delivery is recorded even if ctx was cancelled meanwhile.
		if err := e.queue.Acknowledge(context.WithoutCancel(ctx), action.ID); err != nil {
			// Delivered but still queued; the idempotency key makes the
			// next replay safe.
			logger.Error("failed to acknowledge synced action",
				"action_id", action.ID,
				"error", err,
			)
			res.Failed++
			continue
		}

		logger.Debug("action synced", "action_id", action.ID)
		res.Synced++
	}
	return res
}

// deliver calls the deliverer, converting errors and panics into a
// *DeliveryError.
func (e *Engine) deliver(ctx context.Context, action record.PendingAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DeliveryError{ActionID: action.ID, Err: fmt.Errorf("deliverer panicked: %v", r)}
		}
	}()
	if err := e.deliverer.Deliver(ctx, action); err != nil {
		return &DeliveryError{ActionID: action.ID, Err: err}
	}
	return nil
}

// Trigger starts a run in the background and returns immediately.
// The run uses the engine's base context (see WithContext). If a run is
// already in flight, one more run starts as soon as it finishes, so actions
// queued during that run are not left waiting for the next trigger.
func (e *Engine) Trigger() {
	e.rerun.Store(true)
	e.spawn()
}

func (e *Engine) spawn() {
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		for e.rerun.Swap(false) {
			if res := e.Run(e.baseCtx); res.Coalesced {
				e.rerun.Store(true)
				if e.running.Load() {
					// The in-flight run picks the request up in release.
					return
				}
			}
		}
	}()
}

// release ends a run and starts the run requested while it was in flight.
func (e *Engine) release() {
	e.running.Store(false)
	if e.rerun.Load() {
		e.logger.Debug("sync requested during run, running again")
		e.spawn()
	}
}

// Wait blocks until every run started by Trigger has finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// LastResult returns the most recent completed (non-coalesced) run result.
func (e *Engine) LastResult() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}
