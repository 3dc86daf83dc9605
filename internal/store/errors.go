package store

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint that the caller did not expect to race on.
	ErrDuplicate = errors.New("store: duplicate record")
)
