package async

import "fmt"

// Outcome is the single result of a deferred computation: either a success
// value or a failure carrying an error.
type Outcome[T any] struct {
	value T
	err   error
}

// Success returns an outcome carrying v.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Failure returns an outcome carrying err. A nil err is replaced with
// ErrNilFailure so that a failure can never be mistaken for a success.
func Failure[T any](err error) Outcome[T] {
	if err == nil {
		err = ErrNilFailure
	}
	return Outcome[T]{err: err}
}

// Of builds an outcome from the conventional (value, error) pair.
func Of[T any](v T, err error) Outcome[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(v)
}

// IsSuccess reports whether the outcome carries a value.
func (o Outcome[T]) IsSuccess() bool {
	return o.err == nil
}

// Value returns the success value, or the zero value on failure.
func (o Outcome[T]) Value() T {
	return o.value
}

// Err returns the failure error, or nil on success.
func (o Outcome[T]) Err() error {
	return o.err
}

// Get returns the outcome as a (value, error) pair.
func (o Outcome[T]) Get() (T, error) {
	return o.value, o.err
}

// String returns a log-friendly representation.
func (o Outcome[T]) String() string {
	if o.err != nil {
		return fmt.Sprintf("Failure(%v)", o.err)
	}
	return fmt.Sprintf("Success(%v)", o.value)
}
