package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/civicsync/internal/app"
	"github.com/roach88/civicsync/internal/config"
	"github.com/roach88/civicsync/internal/queue"
	"github.com/roach88/civicsync/internal/record"
	"github.com/roach88/civicsync/internal/testutil"
)

// scenarioEpoch is the first timestamp handed out by the step clock.
var scenarioEpoch = time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC)

// Harness executes one scenario against a fresh, fully wired app.
type Harness struct {
	app       *app.App
	deliverer *testutil.ScriptedDeliverer

	mu     sync.Mutex
	result *Result
}

// recordingDeliverer forwards to the scripted deliverer and traces every
// attempt.
type recordingDeliverer struct {
	h *Harness
}

func (d recordingDeliverer) Deliver(ctx context.Context, action record.PendingAction) error {
	err := d.h.deliverer.Deliver(ctx, action)
	outcome := "delivered"
	if err != nil {
		outcome = "failed: " + err.Error()
	}
	d.h.trace(TraceEvent{
		Type:     EventDelivery,
		ActionID: action.ID,
		Key:      action.IdempotencyKey,
		Outcome:  outcome,
		Payload:  map[string]any(action.Payload.Clone()),
	})
	return err
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The step clock and
// sequential idempotency keys keep traces reproducible.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h := &Harness{
		deliverer: testutil.NewScriptedDeliverer(),
		result:    NewResult(),
	}

	cfg := config.Default()
	cfg.Database = ":memory:"
	cfg.SyncOnStart = false

	a, err := app.New(ctx, cfg,
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		app.WithDeliverer(recordingDeliverer{h: h}),
		app.WithClock(testutil.NewStepClock(scenarioEpoch, time.Second).Now),
		app.WithKeyGenerator(queue.NewSequentialGenerator("key")),
		app.WithInitialOnline(scenario.Online),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	defer a.Close()
	h.app = a

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h.result, scenario.Assertions, a) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) trace(e TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.add(e)
}

// executeStep runs one step, waits for any sync it triggered, and checks the
// step's expect clause. Storage errors abort the scenario.
func (h *Harness) executeStep(ctx context.Context, index int, step Step) error {
	h.trace(TraceEvent{Type: EventStep, Action: step.Action, Args: stepArgs(step)})

	out, err := h.apply(ctx, step)
	h.app.Engine.Wait()
	if err != nil {
		return fmt.Errorf("step %d (%s): %w", index, step.Action, err)
	}
	if out == nil {
		if step.Expect != nil {
			h.result.AddError(fmt.Sprintf("step %d (%s): expect given but the step has no result", index, step.Action))
		}
		return nil
	}

	result, err := toJSONMap(out)
	if err != nil {
		return fmt.Errorf("step %d (%s): %w", index, step.Action, err)
	}
	h.trace(TraceEvent{Type: EventResult, Action: step.Action, Result: result})

	if step.Expect != nil {
		expected, err := record.Normalize(step.Expect)
		if err != nil {
			return fmt.Errorf("step %d (%s): invalid expect: %w", index, step.Action, err)
		}
		if !matchSubset(result, expected) {
			h.result.AddError(fmt.Sprintf("step %d (%s): expected %v, got %v", index, step.Action, map[string]any(expected), result))
		}
	}
	return nil
}

// apply performs the step and returns its result value, or nil for steps
// without one.
func (h *Harness) apply(ctx context.Context, step Step) (any, error) {
	c := h.app.Cache
	switch step.Action {
	case StepCacheRecords:
		records := make([]record.Record, len(step.Records))
		for i, r := range step.Records {
			records[i] = r
		}
		res, err := c.CacheRecords(ctx, record.Partition(step.Partition), records)
		failed := make([]any, 0, len(res.Failures))
		for _, f := range res.Failures {
			failed = append(failed, f.Index)
		}
		if err != nil && len(res.Failures) == 0 {
			return nil, err
		}
		return map[string]any{"written": res.Written, "failed": failed}, nil

	case StepDeleteRecord:
		return nil, c.DeleteRecord(ctx, record.Partition(step.Partition), step.Key)

	case StepClearCache:
		return nil, c.ClearAllCache(ctx)

	case StepSubmit:
		return c.Submit(ctx, step.Payload)

	case StepQueueAction:
		a, err := c.QueueAction(ctx, step.Payload)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": a.ID, "idempotencyKey": a.IdempotencyKey}, nil

	case StepSync:
		return c.SyncPendingActions(ctx), nil

	case StepSignal:
		h.app.Monitor.Signal(*step.Online)
		// Wait for the reconnect sync before reporting.
		h.app.Engine.Wait()
		return map[string]any{"isOnline": h.app.Monitor.Online()}, nil

	case StepFailAction:
		var err error
		if step.Error != "" {
			err = errors.New(step.Error)
		}
		h.deliverer.FailAction(step.ActionID, err)
		return nil, nil

	case StepDeliveryDown:
		msg := step.Error
		if msg == "" {
			msg = "network unavailable"
		}
		h.deliverer.SetDown(errors.New(msg))
		return nil, nil

	case StepDeliveryUp:
		h.deliverer.Succeed()
		return nil, nil

	case StepClearQueue:
		return nil, c.ClearPendingActions(ctx)
	}
	return nil, fmt.Errorf("unknown action %q", step.Action)
}

// stepArgs is the traced form of a step's inputs.
func stepArgs(step Step) any {
	switch step.Action {
	case StepCacheRecords:
		records := make([]any, len(step.Records))
		for i, r := range step.Records {
			records[i] = r
		}
		return map[string]any{"partition": step.Partition, "records": records}
	case StepDeleteRecord:
		return map[string]any{"partition": step.Partition, "key": step.Key}
	case StepSubmit, StepQueueAction:
		return step.Payload
	case StepSignal:
		return map[string]any{"online": *step.Online}
	case StepFailAction:
		args := map[string]any{"action_id": step.ActionID}
		if step.Error != "" {
			args["error"] = step.Error
		}
		return args
	case StepDeliveryDown:
		if step.Error != "" {
			return map[string]any{"error": step.Error}
		}
	}
	return nil
}

// toJSONMap renders v as the generic JSON object a client would see.
func toJSONMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
