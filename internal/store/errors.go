package store

import "fmt"

// Error is a storage-level sentinel. Services translate these into coded
// domain errors; anything that is not a store.Error is a storage fault.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Message: e.Message, Err: err}
}

// Sentinel errors.
var (
	ErrNotFound      = &Error{Message: "resource not found"}
	ErrAlreadyExists = &Error{Message: "resource already exists"}
	ErrEmailExists   = &Error{Message: "email already in use"}
)
