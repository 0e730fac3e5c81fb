package apperr

import (
	"context"
	"errors"
)

// ErrInvalid is returned when caller-supplied data fails validation
// (missing required fields, coordinates out of range).
var ErrInvalid = errors.New("invalid input")

// ErrCatalogMiss is returned by intake when a line item is not in the catalog.
var ErrCatalogMiss = errors.New("catalog item not found")

// ErrOutOfStock is returned by intake when a catalog item cannot be ordered.
var ErrOutOfStock = errors.New("catalog item out of stock")

// ErrIllegalTransition is returned when the order state machine rejects a transition.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrCapacityLost is returned when an atomic bind lost a race to another binder.
var ErrCapacityLost = errors.New("capacity lost")

// ErrNoCandidate means no provider or courier is within reach.
var ErrNoCandidate = errors.New("no candidate")

// ErrCancelled reports cooperative cancellation.
var ErrCancelled = errors.New("cancelled")

// ErrUnavailable reports that a transient dependency kept failing after retries.
var ErrUnavailable = errors.New("unavailable")

// ErrNotFound indicates that the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or state conflict.
var ErrConflict = errors.New("conflict")

// ErrPreconditionFailed is returned by atomic updates whose predicate rejected the current row.
var ErrPreconditionFailed = errors.New("precondition failed")

// ErrForbidden means the acting party is not bound to the order.
var ErrForbidden = errors.New("forbidden")

var domain = []error{
	ErrInvalid, ErrCatalogMiss, ErrOutOfStock, ErrIllegalTransition, ErrCapacityLost,
	ErrNoCandidate, ErrCancelled, ErrUnavailable, ErrNotFound, ErrConflict,
	ErrPreconditionFailed, ErrForbidden,
}

// IsDomain reports whether err wraps one of the package sentinels.
func IsDomain(err error) bool {
	for _, d := range domain {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// FromContext maps context cancellation and deadline errors to ErrCancelled
// and returns any other error unchanged.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		return errors.Join(ErrCancelled, err)
	}
	return err
}
