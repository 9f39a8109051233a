package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates the operation collides with existing state.
	ErrConflict = errors.New("conflict")
)
