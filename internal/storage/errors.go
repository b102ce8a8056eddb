package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key already exists.
	// Rounds are append-only and never overwritten.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a guarded update finds unexpected state,
	// e.g. advancing the clock from an hour that is no longer current.
	ErrConflict = errors.New("conflict")

	// ErrLocked is returned by Locker.TryLock when the lock is held elsewhere.
	ErrLocked = errors.New("lock is held")
)
