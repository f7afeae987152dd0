package storage

import "errors"

// Journal errors. Records are written once and never updated.
var (
	// ErrNotFound is returned when no record has the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when a record with the same key was already journaled.
	ErrDuplicateKey = errors.New("duplicate key: journal records are immutable")

	// ErrInvalidInput is returned for a nil record or one without a key.
	ErrInvalidInput = errors.New("invalid input")
)
