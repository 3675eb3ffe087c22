package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/civicsync/internal/record"
)

func TestSet_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := record.Record{
		"id":        "evt-1",
		"title":     "Park cleanup",
		"category":  "environment",
		"startDate": "2024-04-01T09:00:00Z",
		"attendees": 12,
		"tags":      []any{"outdoor", "volunteer"},
		"location":  map[string]any{"lat": 51.5, "lng": -0.12},
		"cancelled": false,
		"notes":     nil,
	}

	key, err := s.Set(ctx, record.Events, in)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", key)

	got, found, err := s.Get(ctx, record.Events, "evt-1")
	require.NoError(t, err)
	require.True(t, found)

	want, err := record.Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSet_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, record.Notifications, record.Record{"id": "n1", "read": false})
	require.NoError(t, err)
	_, err = s.Set(ctx, record.Notifications, record.Record{"id": "n1", "read": true})
	require.NoError(t, err)

	got, found, err := s.Get(ctx, record.Notifications, "n1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, true, got["read"])

	n, err := s.Count(ctx, record.Notifications)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSet_NumericKeyNormalized(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	key, err := s.Set(ctx, record.Events, record.Record{"id": 42})
	require.NoError(t, err)
	assert.Equal(t, "42", key)

	// A float64 id (as decoded from JSON) lands on the same key.
	key, err = s.Set(ctx, record.Events, record.Record{"id": float64(42), "v": 2})
	require.NoError(t, err)
	assert.Equal(t, "42", key)

	got, found, err := s.Get(ctx, record.Events, "42")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float64(2), got["v"])
}

func TestSet_UserPreferencesUseKeyField(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	key, err := s.Set(ctx, record.UserPreferences, record.Record{"key": "theme", "value": "dark"})
	require.NoError(t, err)
	assert.Equal(t, "theme", key)

	_, err = s.Set(ctx, record.UserPreferences, record.Record{"id": "theme"})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestSet_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		partition record.Partition
		rec       record.Record
		target    error
	}{
		{"unknown partition", "comments", record.Record{"id": "c1"}, ErrUnknownPartition},
		{"missing key", record.Events, record.Record{"title": "no id"}, ErrMissingKey},
		{"blank key", record.Events, record.Record{"id": "  "}, ErrMissingKey},
		{"fractional key", record.Events, record.Record{"id": 1.5}, ErrMissingKey},
		{"bool key", record.Notifications, record.Record{"id": true}, ErrMissingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Set(ctx, tt.partition, tt.rec)
			require.Error(t, err)
			assert.True(t, IsStorageError(err))
			assert.ErrorIs(t, err, tt.target)

			se, ok := AsStorageError(err)
			require.True(t, ok)
			assert.Equal(t, "set", se.Op)
			assert.Equal(t, tt.partition, se.Partition)
		})
	}
}

func TestGet_MissingKey(t *testing.T) {
	s := createTestStore(t)

	got, found, err := s.Get(context.Background(), record.Events, "does-not-exist")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestDelete_ThenGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, record.Events, record.Record{"id": "e1"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, record.Events, "e1"))
	_, found, err := s.Get(ctx, record.Events, "e1")
	require.NoError(t, err)
	assert.False(t, found)

	// Idempotent
	require.NoError(t, s.Delete(ctx, record.Events, "e1"))
}

func TestGetAll_EmptyPartition(t *testing.T) {
	s := createTestStore(t)

	for _, p := range record.Partitions {
		records, err := s.GetAll(context.Background(), p)
		require.NoError(t, err)
		assert.NotNil(t, records, "partition %s", p)
		assert.Empty(t, records, "partition %s", p)
	}
}

func TestGetAll_AscendingKeyOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_, err := s.Set(ctx, record.Notifications, record.Record{"id": id})
		require.NoError(t, err)
	}

	records, err := s.GetAll(ctx, record.Notifications)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0]["id"])
	assert.Equal(t, "b", records[1]["id"])
	assert.Equal(t, "c", records[2]["id"])
}

func TestClear_OnlyTargetPartition(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Set(ctx, record.Events, record.Record{"id": "e1"})
	require.NoError(t, err)
	_, err = s.Set(ctx, record.Notifications, record.Record{"id": "n1"})
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, record.Events))

	n, err := s.Count(ctx, record.Events)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.Count(ctx, record.Notifications)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCount_UnknownPartition(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Count(context.Background(), "bogus")
	assert.True(t, errors.Is(err, ErrUnknownPartition))
}

func TestSet_UnicodeFormsStayDistinct(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	in := record.Record{"id": "n1", "title": decomposed, composed: 1, decomposed: 2}
	_, err := s.Set(ctx, record.Notifications, in)
	require.NoError(t, err)

	got, found, err := s.Get(ctx, record.Notifications, "n1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, decomposed, got["title"])
	assert.Equal(t, float64(1), got[composed])
	assert.Equal(t, float64(2), got[decomposed])

	_, err = s.Set(ctx, record.UserPreferences, record.Record{"key": composed, "v": "composed"})
	require.NoError(t, err)
	_, err = s.Set(ctx, record.UserPreferences, record.Record{"key": decomposed, "v": "decomposed"})
	require.NoError(t, err)

	n, err := s.Count(ctx, record.UserPreferences)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, found, err = s.Get(ctx, record.UserPreferences, decomposed)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record.Record{"key": decomposed, "v": "decomposed"}, got)
}

func TestSet_RejectsInexactNumericKeys(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []float64{1e19, 2e19, -1e19, float64(1<<53) * 4} {
		_, err := s.Set(ctx, record.Events, record.Record{"id": id})
		assert.ErrorIs(t, err, ErrMissingKey, "id %v", id)
	}

	n, err := s.Count(ctx, record.Events)
	require.NoError(t, err)
	assert.Zero(t, n)
}
