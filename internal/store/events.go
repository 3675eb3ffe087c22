package store

import (
	"context"

	"github.com/roach88/civicsync/internal/record"
)

// EventsByCategory returns events whose "category" equals category,
// ordered by start date then id. Events without a category are never
// returned here but remain visible through GetAll.
func (s *Store) EventsByCategory(ctx context.Context, category string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM events
		WHERE category = ?
		ORDER BY start_date ASC, record_key COLLATE BINARY ASC
	`, category)
	if err != nil {
		return nil, newError("events_by_category", record.Events, err)
	}
	defer rows.Close()

	records, err := scanBodies(rows)
	if err != nil {
		return nil, newError("events_by_category", record.Events, err)
	}
	return records, nil
}

// EventsStartingBetween returns events with from <= startDate < to.
// Dates compare as text, so ISO 8601 values in one format order correctly.
// An empty bound is open.
func (s *Store) EventsStartingBetween(ctx context.Context, from, to string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM events
		WHERE start_date IS NOT NULL
		  AND (? = '' OR start_date >= ?)
		  AND (? = '' OR start_date < ?)
		ORDER BY start_date ASC, record_key COLLATE BINARY ASC
	`, from, from, to, to)
	if err != nil {
		return nil, newError("events_between", record.Events, err)
	}
	defer rows.Close()

	records, err := scanBodies(rows)
	if err != nil {
		return nil, newError("events_between", record.Events, err)
	}
	return records, nil
}
