package verify

import "fmt"

// UnexpectedError wraps any failure of a verification that is neither a
// validation error nor a record store error.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("verify: %s: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }
