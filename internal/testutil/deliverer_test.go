package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/civicsync/internal/record"
)

func action(id int64, payload record.Record) record.PendingAction {
	return record.PendingAction{ID: id, Payload: payload}
}

func TestScriptedDeliverer_SucceedsByDefault(t *testing.T) {
	d := NewScriptedDeliverer()

	require.NoError(t, d.Deliver(context.Background(), action(1, nil)))
	require.NoError(t, d.Deliver(context.Background(), action(2, nil)))

	assert.Equal(t, []int64{1, 2}, d.DeliveredIDs())
	assert.Equal(t, []int64{1, 2}, d.Attempts())
}

func TestScriptedDeliverer_FailAction(t *testing.T) {
	d := NewScriptedDeliverer()
	boom := errors.New("boom")
	d.FailAction(2, boom)
	d.FailAction(3, nil)

	assert.NoError(t, d.Deliver(context.Background(), action(1, nil)))
	assert.ErrorIs(t, d.Deliver(context.Background(), action(2, nil)), boom)
	assert.ErrorIs(t, d.Deliver(context.Background(), action(3, nil)), ErrScriptedFailure)

	assert.Equal(t, []int64{1}, d.DeliveredIDs())
	assert.Equal(t, []int64{1, 2, 3}, d.Attempts())

	d.Succeed()
	assert.NoError(t, d.Deliver(context.Background(), action(2, nil)))
}

func TestScriptedDeliverer_FailIf(t *testing.T) {
	d := NewScriptedDeliverer()
	d.FailIf(func(a record.PendingAction) bool { return a.Payload["op"] == "delete" })

	assert.Error(t, d.Deliver(context.Background(), action(1, record.Record{"op": "delete"})))
	assert.NoError(t, d.Deliver(context.Background(), action(2, record.Record{"op": "create"})))
}

func TestScriptedDeliverer_SetDown(t *testing.T) {
	d := NewScriptedDeliverer()
	offline := errors.New("network unreachable")

	d.SetDown(offline)
	assert.ErrorIs(t, d.Deliver(context.Background(), action(1, nil)), offline)

	d.SetDown(nil)
	assert.NoError(t, d.Deliver(context.Background(), action(1, nil)))
}

func TestScriptedDeliverer_Hold(t *testing.T) {
	d := NewScriptedDeliverer()
	release := d.Hold()

	done := make(chan error, 1)
	go func() { done <- d.Deliver(context.Background(), action(7, nil)) }()

	select {
	case id := <-d.Started():
		assert.Equal(t, int64(7), id)
	case <-time.After(time.Second):
		t.Fatal("delivery did not start")
	}

	select {
	case <-done:
		t.Fatal("delivery finished while held")
	default:
	}

	release()
	release()
	require.NoError(t, <-done)
}

func TestScriptedDeliverer_HoldRespectsContext(t *testing.T) {
	d := NewScriptedDeliverer()
	release := d.Hold()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.Deliver(ctx, action(1, nil)), context.Canceled)
}
