package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrDuplicateTitle is returned when a title collides case-insensitively
	// with another note. It matches ErrConflict as well.
	ErrDuplicateTitle = fmt.Errorf("%w: duplicate title", ErrConflict)

	// ErrInvalidPath is returned by operations addressing a node that does
	// not exist or cannot hold the requested change. The tree is untouched.
	ErrInvalidPath = errors.New("invalid path")

	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrNoteLimit           = errors.New("note limit reached")
)

// PersistenceError reports a store write that failed for one note.
type PersistenceError struct {
	NoteID string
	Field  string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s of note %s: %v", e.Field, e.NoteID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
