package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Partition names a logical table in the durable store.
// The names are part of the storage contract and must not change without a
// schema version bump.
type Partition string

const (
	Events          Partition = "events"
	Notifications   Partition = "notifications"
	UserPreferences Partition = "userPreferences"
	PendingActions  Partition = "pendingActions"
)

// Partitions lists every partition in declaration order.
var Partitions = []Partition{Events, Notifications, UserPreferences, PendingActions}

// CachePartitions are the partitions a cache reset clears.
// PendingActions is deliberately absent: unsynced user actions survive a reset.
var CachePartitions = []Partition{Events, Notifications, UserPreferences}

var (
	// ErrUnknownPartition is returned for a partition name outside Partitions.
	ErrUnknownPartition = errors.New("unknown partition")
	// ErrMissingKey is returned when a record has no usable primary key.
	ErrMissingKey = errors.New("record has no primary key")
)

// ParsePartition validates a partition name.
func ParsePartition(name string) (Partition, error) {
	for _, p := range Partitions {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPartition, name)
}

// KeyField returns the primary key field of a partition.
func (p Partition) KeyField() string {
	if p == UserPreferences {
		return "key"
	}
	return "id"
}

// Valid reports whether p is a known partition.
func (p Partition) Valid() bool {
	_, err := ParsePartition(string(p))
	return err == nil
}

// Record is a structured value keyed by its partition's primary key.
// Values are JSON-compatible: string, float64 (or any Go integer), bool, nil,
// []any and map[string]any.
type Record map[string]any

// Key extracts and normalizes the primary key for partition p.
// Strings are used as-is; integral numbers are rendered in decimal.
func (r Record) Key(p Partition) (string, error) {
	v, ok := r[p.KeyField()]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: field %q", ErrMissingKey, p.KeyField())
	}
	return NormalizeKey(v)
}

// maxExactInt is the largest magnitude at which every integer is exactly
// representable as a float64.
const maxExactInt = 1 << 53

// NormalizeKey renders a primary key value as text. Float keys must be
// integral and within ±2^53.
func NormalizeKey(v any) (string, error) {
	switch k := v.(type) {
	case string:
		if strings.TrimSpace(k) == "" {
			return "", fmt.Errorf("%w: empty string", ErrMissingKey)
		}
		return k, nil
	case int:
		return strconv.FormatInt(int64(k), 10), nil
	case int64:
		return strconv.FormatInt(k, 10), nil
	case json.Number:
		if _, err := k.Int64(); err != nil {
			return "", fmt.Errorf("%w: non-integer number %s", ErrMissingKey, k)
		}
		return k.String(), nil
	case float64:
		if math.IsNaN(k) || math.IsInf(k, 0) || k != math.Trunc(k) {
			return "", fmt.Errorf("%w: non-integer number %v", ErrMissingKey, k)
		}
		if math.Abs(k) > maxExactInt {
			return "", fmt.Errorf("%w: number %v is beyond exact integer range", ErrMissingKey, k)
		}
		return strconv.FormatInt(int64(k), 10), nil
	default:
		return "", fmt.Errorf("%w: unsupported key type %T", ErrMissingKey, v)
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = cloneValue(e)
		}
		return m
	case Record:
		return val.Clone()
	case []any:
		s := make([]any, len(val))
		for i, e := range val {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// PendingAction is a durably queued mutation awaiting delivery.
//
// Synced is always false while the action is stored: successful replays
// delete the action instead of marking it.
type PendingAction struct {
	ID             int64     `json:"id"`
	Payload        Record    `json:"payload"`
	Timestamp      time.Time `json:"timestamp"`
	Synced         bool      `json:"synced"`
	IdempotencyKey string    `json:"idempotencyKey"`
}

// ToRecord renders the action in its partition record form.
func (a PendingAction) ToRecord() Record {
	return Record{
		"id":             float64(a.ID),
		"payload":        map[string]any(a.Payload.Clone()),
		"timestamp":      a.Timestamp.UTC().Format(time.RFC3339Nano),
		"synced":         a.Synced,
		"idempotencyKey": a.IdempotencyKey,
	}
}

// CacheStats is a derived snapshot of the cache. It is never persisted.
type CacheStats struct {
	Events          int  `json:"events"`
	Notifications   int  `json:"notifications"`
	UserPreferences int  `json:"userPreferences"`
	PendingActions  int  `json:"pendingActions"`
	IsOnline        bool `json:"isOnline"`
}
