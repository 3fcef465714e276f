package async

import (
	"errors"
	"fmt"
)

var (
	// ErrNilFailure replaces a nil error handed to Failure.
	ErrNilFailure = errors.New("async: failure without error")
	// ErrNilSingle is delivered when subscribing to a zero Single.
	ErrNilSingle = errors.New("async: single has no source")
)

// PanicError is the failure delivered when a computation panics.
type PanicError struct {
	Value any
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("async: computation panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
