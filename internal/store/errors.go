package store

import (
	"errors"
	"fmt"

	"github.com/roach88/civicsync/internal/record"
)

// Sentinels re-exported so callers can match without importing record.
var (
	ErrUnknownPartition = record.ErrUnknownPartition
	ErrMissingKey       = record.ErrMissingKey
)

// Error is the storage error returned by every Store operation.
// It wraps the cause, which may be ErrUnknownPartition, ErrMissingKey,
// or a database error.
type Error struct {
	Op        string
	Partition record.Partition
	Err       error
}

func newError(op string, p record.Partition, err error) error {
	return &Error{Op: op, Partition: p, Err: err}
}

func (e *Error) Error() string {
	if e.Partition == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Partition, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *Error.
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// AsStorageError extracts the *Error from err, if any.
func AsStorageError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
