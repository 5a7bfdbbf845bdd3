package sections

import "errors"

var (
	// ErrNotFound indicates the section does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a resource id that does not belong to the section.
	ErrConflict = errors.New("conflict")
)
