// Package resilience bounds scoped executions in time.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when an operation exceeds its timeout
var ErrTimeout = errors.New("operation timed out")

// WithTimeout runs fn with a context that expires after timeout. Unlike a
// select on ctx.Done, it waits for fn to return: a transaction scope must be
// allowed to roll back and restore its connection before the caller moves on.
// If the deadline passed and fn failed, the error is wrapped with ErrTimeout;
// both remain reachable through errors.Is. A timeout <= 0 disables the bound.
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(timeoutCtx)
	if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
