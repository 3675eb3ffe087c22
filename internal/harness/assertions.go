package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/civicsync/internal/app"
	"github.com/roach88/civicsync/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			switch event.Type {
			case EventStep:
				fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Action, event.Args)
			case EventDelivery:
				fmt.Fprintf(&buf, "  [%d]   deliver #%d %s: %s\n", event.Seq, event.ActionID, event.Key, event.Outcome)
			}
		}
	}
	return buf.String()
}

// assertDeliveredKeys checks the successfully delivered idempotency keys,
// in delivery order.
func assertDeliveredKeys(trace []TraceEvent, assertion Assertion) error {
	var delivered []string
	for _, e := range trace {
		if e.Type == EventDelivery && e.Outcome == "delivered" {
			delivered = append(delivered, e.Key)
		}
	}
	if !keysEqual(delivered, assertion.Keys) {
		return &AssertionError{
			Type:     AssertDeliveredKeys,
			Expected: fmt.Sprintf("%v", assertion.Keys),
			Actual:   fmt.Sprintf("%v", delivered),
			Trace:    trace,
		}
	}
	return nil
}

func assertPendingKeys(ctx context.Context, a *app.App, trace []TraceEvent, assertion Assertion) error {
	actions, err := a.Queue.Snapshot(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, len(actions))
	for i, action := range actions {
		keys[i] = action.IdempotencyKey
	}
	if !keysEqual(keys, assertion.Keys) {
		return &AssertionError{
			Type:     AssertPendingKeys,
			Expected: fmt.Sprintf("%v", assertion.Keys),
			Actual:   fmt.Sprintf("%v", keys),
			Trace:    trace,
		}
	}
	return nil
}

func assertPendingCount(ctx context.Context, a *app.App, assertion Assertion) error {
	n, err := a.Queue.Len(ctx)
	if err != nil {
		return err
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertPendingCount,
			Expected: fmt.Sprintf("%d pending actions", assertion.Count),
			Actual:   fmt.Sprintf("%d pending actions", n),
		}
	}
	return nil
}

func assertRecordCount(ctx context.Context, a *app.App, assertion Assertion) error {
	n, err := a.Store.Count(ctx, record.Partition(assertion.Partition))
	if err != nil {
		return err
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%d records in %s", assertion.Count, assertion.Partition),
			Actual:   fmt.Sprintf("%d records", n),
		}
	}
	return nil
}

func assertRecord(ctx context.Context, a *app.App, assertion Assertion) error {
	r, found, err := a.Cache.GetRecord(ctx, record.Partition(assertion.Partition), assertion.Key)
	if err != nil {
		return err
	}
	if assertion.Absent {
		if found {
			return &AssertionError{
				Type:     AssertRecord,
				Expected: fmt.Sprintf("%s/%s absent", assertion.Partition, assertion.Key),
				Actual:   fmt.Sprintf("%v", map[string]any(r)),
			}
		}
		return nil
	}
	if !found {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s/%s matching %v", assertion.Partition, assertion.Key, assertion.Expect),
			Actual:   "not found",
		}
	}
	expected, err := record.Normalize(assertion.Expect)
	if err != nil {
		return fmt.Errorf("record: invalid expect: %w", err)
	}
	if !matchSubset(r, expected) {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s/%s matching %v", assertion.Partition, assertion.Key, map[string]any(expected)),
			Actual:   fmt.Sprintf("%v", map[string]any(r)),
		}
	}
	return nil
}

func assertStats(ctx context.Context, a *app.App, assertion Assertion) error {
	stats, err := a.Cache.GetCacheStats(ctx)
	if err != nil {
		return err
	}
	actual, err := toJSONMap(stats)
	if err != nil {
		return err
	}
	expected, err := record.Normalize(assertion.Expect)
	if err != nil {
		return fmt.Errorf("stats: invalid expect: %w", err)
	}
	if !matchSubset(actual, expected) {
		return &AssertionError{
			Type:     AssertStats,
			Expected: fmt.Sprintf("%v", map[string]any(expected)),
			Actual:   fmt.Sprintf("%v", actual),
		}
	}
	return nil
}

// matchSubset checks if actual contains all expected fields (subset match).
// Extra keys in actual are ignored.
func matchSubset(actual, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two decoded JSON values for equality.
// Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(plain(actual), plain(expected))
}

// plain strips the Record type so records compare equal to decoded maps.
func plain(v any) any {
	switch val := v.(type) {
	case record.Record:
		return map[string]any(val)
	default:
		return v
	}
}

func keysEqual(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return false
		}
	}
	return true
}

// EvaluateAssertions evaluates all assertions against the result and the
// final state of a. Returns one message per failed assertion.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, a *app.App) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDeliveredKeys:
			err = assertDeliveredKeys(result.Trace, assertion)
		case AssertPendingKeys:
			err = assertPendingKeys(ctx, a, result.Trace, assertion)
		case AssertPendingCount:
			err = assertPendingCount(ctx, a, assertion)
		case AssertRecordCount:
			err = assertRecordCount(ctx, a, assertion)
		case AssertRecord:
			err = assertRecord(ctx, a, assertion)
		case AssertStats:
			err = assertStats(ctx, a, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
