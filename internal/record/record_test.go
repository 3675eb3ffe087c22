package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePartition(t *testing.T) {
	for _, p := range Partitions {
		got, err := ParsePartition(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.True(t, p.Valid())
	}

	_, err := ParsePartition("complaints")
	assert.ErrorIs(t, err, ErrUnknownPartition)
	assert.False(t, Partition("complaints").Valid())
}

func TestKeyField(t *testing.T) {
	assert.Equal(t, "id", Events.KeyField())
	assert.Equal(t, "id", Notifications.KeyField())
	assert.Equal(t, "key", UserPreferences.KeyField())
	assert.Equal(t, "id", PendingActions.KeyField())
}

func TestCachePartitionsExcludePendingActions(t *testing.T) {
	assert.NotContains(t, CachePartitions, PendingActions)
	assert.Len(t, CachePartitions, 3)
}

func TestRecordKey(t *testing.T) {
	tests := []struct {
		name      string
		partition Partition
		rec       Record
		want      string
		wantErr   bool
	}{
		{"string id", Events, Record{"id": "evt-1"}, "evt-1", false},
		{"float id", Notifications, Record{"id": 42.0}, "42", false},
		{"int id", Events, Record{"id": 7}, "7", false},
		{"json number", Events, Record{"id": json.Number("9")}, "9", false},
		{"preference key", UserPreferences, Record{"key": "theme"}, "theme", false},
		{"missing", Events, Record{"title": "x"}, "", true},
		{"nil", Events, Record{"id": nil}, "", true},
		{"empty string", Events, Record{"id": "  "}, "", true},
		{"fractional", Events, Record{"id": 1.5}, "", true},
		{"largest exact float", Events, Record{"id": float64(1 << 53)}, "9007199254740992", false},
		{"negative float", Events, Record{"id": -12.0}, "-12", false},
		{"float beyond 2^53", Events, Record{"id": float64(1<<53) * 2}, "", true},
		{"float beyond int64", Events, Record{"id": 1e19}, "", true},
		{"negative float beyond int64", Events, Record{"id": -2e19}, "", true},
		{"json number beyond int64", Events, Record{"id": json.Number("1e19")}, "", true},
		{"wrong field for prefs", UserPreferences, Record{"id": "theme"}, "", true},
		{"unsupported type", Events, Record{"id": []any{1}}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rec.Key(tt.partition)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	orig := Record{"id": "a", "tags": []any{"x"}, "meta": map[string]any{"n": 1.0}}
	c := orig.Clone()

	c["tags"].([]any)[0] = "changed"
	c["meta"].(map[string]any)["n"] = 2.0

	assert.Equal(t, "x", orig["tags"].([]any)[0])
	assert.Equal(t, 1.0, orig["meta"].(map[string]any)["n"])
	assert.Nil(t, Record(nil).Clone())
}

func TestPendingActionToRecord(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := PendingAction{
		ID:             3,
		Payload:        Record{"type": "event.rsvp"},
		Timestamp:      ts,
		IdempotencyKey: "k-3",
	}

	r := a.ToRecord()
	assert.Equal(t, 3.0, r["id"])
	assert.Equal(t, false, r["synced"])
	assert.Equal(t, "2026-03-01T12:00:00Z", r["timestamp"])
	assert.Equal(t, "k-3", r["idempotencyKey"])
	assert.Equal(t, map[string]any{"type": "event.rsvp"}, r["payload"])

	key, err := r.Key(PendingActions)
	require.NoError(t, err)
	assert.Equal(t, "3", key)
}
