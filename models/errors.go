package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated covers missing, invalid and expired tokens and unknown identities.
	ErrUnauthenticated = errors.New("authentication error")
	// ErrValidation is returned for bad message bodies or malformed identifiers.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when a contact edge or peer does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique record already exists.
	ErrConflict = errors.New("already exists")
	// ErrDelivery is returned when a push to a live connection fails.
	ErrDelivery = errors.New("delivery failed")
	// ErrStorage is returned when the durable store rejects a read or write.
	ErrStorage = errors.New("storage failure")
)

// Validation wraps ErrValidation with a reason.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing thing.
func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// Storage wraps a driver error so callers can test for ErrStorage.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
