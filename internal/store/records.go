package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/civicsync/internal/record"
)

// Set inserts or overwrites r at its primary key and returns the key.
// On pendingActions a record without an id gets the next counter value.
func (s *Store) Set(ctx context.Context, p record.Partition, r record.Record) (string, error) {
	if p == record.PendingActions {
		return s.setPendingRecord(ctx, r)
	}
	t, err := tableFor(p)
	if err != nil {
		return "", newError("set", p, err)
	}
	key, err := r.Key(p)
	if err != nil {
		return "", newError("set", p, err)
	}

	body, err := record.MarshalCanonical(r)
	if err != nil {
		return "", newError("set", p, err)
	}

	if t.indexed {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO events (record_key, category, start_date, body)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(record_key) DO UPDATE SET
				category = excluded.category,
				start_date = excluded.start_date,
				body = excluded.body
		`, key, indexText(r, "category"), indexText(r, "startDate"), string(body))
	} else {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (record_key, body) VALUES (?, ?)
			ON CONFLICT(record_key) DO UPDATE SET body = excluded.body
		`, t.name), key, string(body))
	}
	if err != nil {
		return "", newError("set", p, err)
	}
	return key, nil
}

// Get returns the record stored at key. A missing key is reported through
// found, never as an error.
func (s *Store) Get(ctx context.Context, p record.Partition, key string) (record.Record, bool, error) {
	if p == record.PendingActions {
		return s.getPendingRecord(ctx, key)
	}
	t, err := tableFor(p)
	if err != nil {
		return nil, false, newError("get", p, err)
	}

	var body string
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT body FROM %s WHERE record_key = ?", t.name),
		key,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, newError("get", p, err)
	}

	r, err := record.UnmarshalRecord([]byte(body))
	if err != nil {
		return nil, false, newError("get", p, err)
	}
	return r, true, nil
}

// GetAll returns every record in the partition in ascending key order
// (byte order for text keys, numeric order for pendingActions).
// Returns an empty slice, never nil.
func (s *Store) GetAll(ctx context.Context, p record.Partition) ([]record.Record, error) {
	if p == record.PendingActions {
		actions, err := s.PendingActionsAfter(ctx, 0, 0)
		if err != nil {
			return nil, err
		}
		records := make([]record.Record, 0, len(actions))
		for _, a := range actions {
			records = append(records, a.ToRecord())
		}
		return records, nil
	}
	t, err := tableFor(p)
	if err != nil {
		return nil, newError("get_all", p, err)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT body FROM %s ORDER BY record_key COLLATE BINARY ASC", t.name))
	if err != nil {
		return nil, newError("get_all", p, err)
	}
	defer rows.Close()

	records, err := scanBodies(rows)
	if err != nil {
		return nil, newError("get_all", p, err)
	}
	return records, nil
}

// Delete removes the record at key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, p record.Partition, key string) error {
	if p == record.PendingActions {
		id, err := parseActionID(key)
		if err != nil {
			return newError("delete", p, err)
		}
		return s.DeletePendingAction(ctx, id)
	}
	t, err := tableFor(p)
	if err != nil {
		return newError("delete", p, err)
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE record_key = ?", t.name),
		key,
	); err != nil {
		return newError("delete", p, err)
	}
	return nil
}

// Clear removes every record in the partition. Clearing pendingActions
// leaves the id counter untouched.
func (s *Store) Clear(ctx context.Context, p record.Partition) error {
	name, err := tableName(p)
	if err != nil {
		return newError("clear", p, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+name); err != nil {
		return newError("clear", p, err)
	}
	return nil
}

// Count returns the number of records in the partition.
func (s *Store) Count(ctx context.Context, p record.Partition) (int, error) {
	name, err := tableName(p)
	if err != nil {
		return 0, newError("count", p, err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, newError("count", p, err)
	}
	return n, nil
}

func tableName(p record.Partition) (string, error) {
	if p == record.PendingActions {
		return "pending_actions", nil
	}
	t, err := tableFor(p)
	if err != nil {
		return "", err
	}
	return t.name, nil
}

func scanBodies(rows *sql.Rows) ([]record.Record, error) {
	records := make([]record.Record, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, err := record.UnmarshalRecord([]byte(body))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
