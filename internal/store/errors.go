package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record satisfies a lookup.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
	// ErrInvalidID is returned for backend IDs the backend cannot parse.
	ErrInvalidID = errors.New("invalid id")
)

// Error represents a backend access failure.
type Error struct {
	Op  string // where it happened (package.Function)
	Msg string // human friendly message
	Err error  // underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("store: %s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap converts a backend error into an *Error. The sentinel errors and
// errors that already are an *Error pass through unchanged.
func Wrap(op, msg string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidID):
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Msg: msg, Err: err}
}
