package interfaces

import "errors"

var (
	// ErrNotFound is returned when a record addressed by ID does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record was concurrently modified or a
	// unique key is already taken
	ErrConflict = errors.New("conflict")
)
