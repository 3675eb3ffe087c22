package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/civicsync/internal/record"
)

func TestAppendPendingAction_AssignsAscendingIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a1, err := s.AppendPendingAction(ctx, record.Record{"op": "create"}, testTime, "k1")
	require.NoError(t, err)
	a2, err := s.AppendPendingAction(ctx, record.Record{"op": "update"}, testTime, "k2")
	require.NoError(t, err)

	assert.Equal(t, int64(1), a1.ID)
	assert.Equal(t, int64(2), a2.ID)
	assert.False(t, a1.Synced)
	assert.Equal(t, testTime, a1.Timestamp)
	assert.Equal(t, "k1", a1.IdempotencyKey)
}

func TestAppendPendingAction_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	appended, err := s.AppendPendingAction(ctx,
		record.Record{"op": "rsvp", "eventId": 7, "nested": map[string]any{"ok": true}},
		testTime, "key-1")
	require.NoError(t, err)

	got, found, err := s.PendingAction(ctx, appended.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, appended, got)
	assert.Equal(t, float64(7), got.Payload["eventId"])
}

func TestPendingIDs_NeverReused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.AppendPendingAction(ctx, record.Record{"n": i}, testTime, "")
		require.NoError(t, err)
	}
	require.NoError(t, s.DeletePendingAction(ctx, 3))
	require.NoError(t, s.Clear(ctx, record.PendingActions))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	a, err := s.AppendPendingAction(ctx, record.Record{"n": 4}, testTime, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), a.ID)

	last, err := s.LastPendingActionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)
}

func TestPendingActionsAfter_Paging(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.AppendPendingAction(ctx, record.Record{"n": i}, testTime, "")
		require.NoError(t, err)
	}

	page, err := s.PendingActionsAfter(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(1), page[0].ID)
	assert.Equal(t, int64(2), page[1].ID)

	page, err = s.PendingActionsAfter(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(3), page[0].ID)
	assert.Equal(t, int64(5), page[2].ID)
}

func TestPendingActionsAfter_Empty(t *testing.T) {
	s := createTestStore(t)

	page, err := s.PendingActionsAfter(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestSet_PendingActionWithoutID(t *testing.T) {
	s := createTestStore(t, WithClock(func() time.Time { return testTime }))
	ctx := context.Background()

	key, err := s.Set(ctx, record.PendingActions, record.Record{"op": "create", "title": "x"})
	require.NoError(t, err)
	assert.Equal(t, "1", key)

	got, found, err := s.Get(ctx, record.PendingActions, "1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float64(1), got["id"])
	assert.Equal(t, map[string]any{"op": "create", "title": "x"}, got["payload"])
	assert.Equal(t, false, got["synced"])
	assert.Equal(t, "2024-03-09T18:30:00.123Z", got["timestamp"])
}

func TestSet_PendingActionExplicitIDRaisesCounter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	key, err := s.Set(ctx, record.PendingActions, record.Record{
		"id":        float64(10),
		"payload":   map[string]any{"op": "delete"},
		"timestamp": "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "10", key)

	a, err := s.AppendPendingAction(ctx, record.Record{}, testTime, "")
	require.NoError(t, err)
	assert.Equal(t, int64(11), a.ID)
}

func TestGetAll_PendingActionsNumericOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []float64{10, 2, 9} {
		_, err := s.Set(ctx, record.PendingActions, record.Record{"id": id, "payload": map[string]any{}})
		require.NoError(t, err)
	}

	records, err := s.GetAll(ctx, record.PendingActions)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, float64(2), records[0]["id"])
	assert.Equal(t, float64(9), records[1]["id"])
	assert.Equal(t, float64(10), records[2]["id"])
}

func TestDelete_PendingActionBadKey(t *testing.T) {
	s := createTestStore(t)

	err := s.Delete(context.Background(), record.PendingActions, "abc")
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.True(t, IsStorageError(err))
}
