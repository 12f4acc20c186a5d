package store

import "errors"

var (
	// ErrValidation reports a missing or empty required field.
	ErrValidation = errors.New("store: validation failed")
	// ErrConflict reports a room name that is already taken.
	ErrConflict = errors.New("store: room name already exists")
	// ErrNotFound reports an unknown room.
	ErrNotFound = errors.New("store: room not found")
)
