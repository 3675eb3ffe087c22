package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/civicsync/internal/record"
)

// table describes how a record partition maps onto SQLite.
type table struct {
	name    string
	indexed bool // carries category/start_date index columns
}

var recordTables = map[record.Partition]table{
	record.Events:          {name: "events", indexed: true},
	record.Notifications:   {name: "notifications"},
	record.UserPreferences: {name: "user_preferences"},
}

// tableFor returns the table backing a record partition.
// pendingActions has its own layout and is handled separately.
func tableFor(p record.Partition) (table, error) {
	t, ok := recordTables[p]
	if !ok {
		return table{}, fmt.Errorf("%w: %q", ErrUnknownPartition, string(p))
	}
	return t, nil
}

// indexText extracts an advisory index value. Anything other than a
// non-empty string is stored as NULL.
func indexText(r record.Record, field string) sql.NullString {
	s, ok := r[field].(string)
	if !ok || s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
