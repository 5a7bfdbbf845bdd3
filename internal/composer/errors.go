package composer

import (
	"errors"
	"fmt"
)

var (
	// ErrAttachmentRejected is returned by SetAttachmentChecked for non-video files.
	ErrAttachmentRejected = errors.New("attachment rejected: not a video file")
	// ErrClosed is returned once a composer session has been committed or discarded.
	ErrClosed = errors.New("composer closed")
	// ErrCommitInFlight is returned by Commit, Discard and store mutations while a commit is outstanding.
	ErrCommitInFlight = errors.New("commit already in progress")
)

// ValidationError reports a local precondition failure. No network call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// UploadError reports that one attached file could not be uploaded; the whole commit was aborted.
type UploadError struct {
	Index int
	Title string
	File  string
	Err   error
}

// noClass marks an UploadError that is not tied to one class, such as a cancelled commit.
const noClass = -1

func (e *UploadError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("uploads failed: %v", e.Err)
	}
	return fmt.Sprintf("upload %q for class %d (%q) failed: %v", e.File, e.Index+1, e.Title, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PersistenceError reports a failed call to the section/resource backend.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
