package uploads

import "errors"

var (
	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTooLarge indicates the declared or received size exceeds the limit.
	ErrTooLarge = errors.New("upload too large")

	// ErrSectionNotFound indicates the upload was scoped to an unknown section.
	ErrSectionNotFound = errors.New("section not found")

	// ErrInUse indicates a stored resource still references the object.
	ErrInUse = errors.New("object is referenced by a resource")
)
