package engine

import (
	"errors"
	"fmt"
)

// DeliveryError reports that a pending action could not be replayed.
// The coordinator logs it and leaves the action queued; it is never
// returned from Run.
type DeliveryError struct {
	// ActionID identifies the queued action.
	ActionID int64

	// Err is the deliverer's error.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver action %d: %v", e.ActionID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError returns true if the error is or wraps a *DeliveryError.
// Uses errors.As to handle wrapped errors.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
