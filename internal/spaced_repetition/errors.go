package spaced_repetition

import (
	"errors"
	"fmt"
)

// Use errors.Is to check: errors.Is(err, spaced_repetition.ErrUnknownItem)
var (
	ErrUnknownItem     = errors.New("spaced_repetition: unknown item")
	ErrInvalidQuality  = errors.New("spaced_repetition: invalid quality")
	ErrPersistence     = errors.New("spaced_repetition: persistence failure")
	ErrVersionConflict = errors.New("spaced_repetition: record was modified concurrently")
	ErrInvalidConfig   = errors.New("spaced_repetition: invalid config")
)

// PersistenceError reports a failed store operation.
// errors.Is(err, ErrPersistence) holds for every PersistenceError.
type PersistenceError struct {
	Op     string // get, put, due, list, unseen
	UserID int64
	ItemID string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("spaced_repetition: %s user %d item %q: %v", e.Op, e.UserID, e.ItemID, e.Err)
	}
	return fmt.Sprintf("spaced_repetition: %s user %d: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
