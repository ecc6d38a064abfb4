package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrJobNotFound, ErrDeadLetterNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrInvalidState is returned when a conditional update's precondition
	// does not hold: the row exists but is not in the expected state
	// (e.g., completing a job that is no longer processing, or resolving
	// an already-resolved dead-letter entry).
	ErrInvalidState = errors.New("entity not in expected state")

	// Entity-specific "not found" errors

	// ErrJobNotFound indicates that the requested job does not exist in the store.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// ErrDeadLetterNotFound indicates that the requested dead-letter entry
	// does not exist in the store.
	ErrDeadLetterNotFound = fmt.Errorf("%w: dead letter entry", ErrNotFound)

	// ErrCacheMiss indicates that the requested cache entry is absent or
	// past its expiry. Expired-but-unswept rows surface as this error.
	ErrCacheMiss = fmt.Errorf("%w: cache entry", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// This includes the generic ErrNotFound and all entity-specific not found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidStateError checks if the error indicates a failed state precondition.
func IsInvalidStateError(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
