package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/civicsync/internal/record"
)

// actionMetaFields are the PendingAction fields that are not payload when a
// pending action arrives in record form without a "payload" object.
var actionMetaFields = []string{"id", "timestamp", "synced", "idempotencyKey"}

// AppendPendingAction stores a new pending action. The id is allocated from
// the persisted counter in the same transaction as the insert.
func (s *Store) AppendPendingAction(ctx context.Context, payload record.Record, ts time.Time, idempotencyKey string) (record.PendingAction, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return record.PendingAction{}, newError("append", record.PendingActions, err)
	}
	ts = ts.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return record.PendingAction{}, newError("append", record.PendingActions, err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, pendingSequence).Scan(&id); err != nil {
		return record.PendingAction{}, newError("append", record.PendingActions, fmt.Errorf("allocate id: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pending_actions (id, payload, timestamp, idempotency_key)
		VALUES (?, ?, ?, ?)
	`, id, body, ts.Format(time.RFC3339Nano), idempotencyKey); err != nil {
		return record.PendingAction{}, newError("append", record.PendingActions, err)
	}

	if err := tx.Commit(); err != nil {
		return record.PendingAction{}, newError("append", record.PendingActions, err)
	}

	stored, err := record.UnmarshalRecord([]byte(body))
	if err != nil {
		return record.PendingAction{}, newError("append", record.PendingActions, err)
	}
	return record.PendingAction{
		ID:             id,
		Payload:        stored,
		Timestamp:      ts,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// PendingActionsAfter returns up to limit actions with id > afterID in
// ascending id order. A limit <= 0 means no limit.
func (s *Store) PendingActionsAfter(ctx context.Context, afterID int64, limit int) ([]record.PendingAction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, timestamp, idempotency_key
		FROM pending_actions
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, newError("list", record.PendingActions, err)
	}
	defer rows.Close()

	actions := make([]record.PendingAction, 0)
	for rows.Next() {
		a, err := scanPendingAction(rows)
		if err != nil {
			return nil, newError("list", record.PendingActions, err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, newError("list", record.PendingActions, fmt.Errorf("iterate pending actions: %w", err))
	}
	return actions, nil
}

// PendingAction returns the action with the given id.
func (s *Store) PendingAction(ctx context.Context, id int64) (record.PendingAction, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, payload, timestamp, idempotency_key
		FROM pending_actions WHERE id = ?
	`, id)
	a, err := scanPendingAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.PendingAction{}, false, nil
	}
	if err != nil {
		return record.PendingAction{}, false, newError("get", record.PendingActions, err)
	}
	return a, true, nil
}

// DeletePendingAction removes one action. Deleting a missing id is not an
// error.
func (s *Store) DeletePendingAction(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_actions WHERE id = ?", id); err != nil {
		return newError("delete", record.PendingActions, err)
	}
	return nil
}

// LastPendingActionID returns the most recently allocated id, or 0 if none
// has ever been allocated. It survives deletes and restarts.
func (s *Store) LastPendingActionID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM sequences WHERE name = ?", pendingSequence,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, newError("last_id", record.PendingActions, err)
	}
	return id, nil
}

// setPendingRecord writes a pending action given in record form. With an
// explicit id the row is upserted and the counter is raised past it.
func (s *Store) setPendingRecord(ctx context.Context, r record.Record) (string, error) {
	const op = "set"
	p := record.PendingActions

	payload := pendingPayload(r)
	ts := s.now().UTC()
	if raw, ok := r["timestamp"].(string); ok && raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return "", newError(op, p, fmt.Errorf("parse timestamp: %w", err))
		}
		ts = parsed.UTC()
	}
	key, _ := r["idempotencyKey"].(string)

	raw, hasID := r["id"]
	if !hasID || raw == nil {
		a, err := s.AppendPendingAction(ctx, payload, ts, key)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(a.ID, 10), nil
	}

	text, err := record.NormalizeKey(raw)
	if err != nil {
		return "", newError(op, p, err)
	}
	id, err := parseActionID(text)
	if err != nil {
		return "", newError(op, p, err)
	}
	body, err := marshalPayload(payload)
	if err != nil {
		return "", newError(op, p, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", newError(op, p, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pending_actions (id, payload, timestamp, idempotency_key)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			timestamp = excluded.timestamp,
			idempotency_key = excluded.idempotency_key
	`, id, body, ts.Format(time.RFC3339Nano), key); err != nil {
		return "", newError(op, p, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)
	`, pendingSequence, id); err != nil {
		return "", newError(op, p, err)
	}
	if err := tx.Commit(); err != nil {
		return "", newError(op, p, err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Store) getPendingRecord(ctx context.Context, key string) (record.Record, bool, error) {
	id, err := parseActionID(key)
	if err != nil {
		return nil, false, newError("get", record.PendingActions, err)
	}
	a, found, err := s.PendingAction(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	return a.ToRecord(), true, nil
}

// pendingPayload extracts the payload of a pending action in record form:
// the "payload" object if present, otherwise every non-meta field.
func pendingPayload(r record.Record) record.Record {
	switch p := r["payload"].(type) {
	case map[string]any:
		return record.Record(p)
	case record.Record:
		return p
	}
	payload := r.Clone()
	for _, f := range actionMetaFields {
		delete(payload, f)
	}
	return payload
}

func marshalPayload(payload record.Record) (string, error) {
	if payload == nil {
		payload = record.Record{}
	}
	data, err := record.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

func parseActionID(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: pending action id %q is not a positive integer", ErrMissingKey, key)
	}
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingAction(row rowScanner) (record.PendingAction, error) {
	var (
		a       record.PendingAction
		payload string
		ts      string
	)
	if err := row.Scan(&a.ID, &payload, &ts, &a.IdempotencyKey); err != nil {
		return record.PendingAction{}, err
	}
	p, err := record.UnmarshalRecord([]byte(payload))
	if err != nil {
		return record.PendingAction{}, err
	}
	a.Payload = p
	a.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return record.PendingAction{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return a, nil
}
