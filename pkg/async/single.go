// Package async provides a minimal deferred single-value-or-error primitive.
//
// A Single does nothing until it is subscribed. Each subscription runs the
// underlying computation once and delivers exactly one Outcome to the
// continuation, possibly from another goroutine.
package async

import (
	"context"
	"sync"
	"sync/atomic"
)

// Single is a cold deferred computation yielding one value or one error.
type Single[T any] struct {
	source func(ctx context.Context, emit func(Outcome[T]))
}

// Completable is a deferred computation that yields no value, only
// completion or an error.
type Completable = Single[struct{}]

// New creates a Single from a source function. The source must eventually
// call emit; additional calls are ignored.
func New[T any](source func(ctx context.Context, emit func(Outcome[T]))) Single[T] {
	return Single[T]{source: source}
}

// FromFunc creates a Single that runs fn on its own goroutine when
// subscribed. A panic in fn is delivered as a *PanicError failure.
func FromFunc[T any](fn func(ctx context.Context) (T, error)) Single[T] {
	return New(func(ctx context.Context, emit func(Outcome[T])) {
		go func() {
			emit(call(ctx, fn))
		}()
	})
}

// FromCallback adapts a callback-style asynchronous API. The register
// function receives a handler it must call once with the result.
func FromCallback[T any](register func(ctx context.Context, handler func(T, error))) Single[T] {
	return New(func(ctx context.Context, emit func(Outcome[T])) {
		register(ctx, func(v T, err error) {
			emit(Of(v, err))
		})
	})
}

// Just returns a Single that succeeds synchronously with v.
func Just[T any](v T) Single[T] {
	return New(func(_ context.Context, emit func(Outcome[T])) {
		emit(Success(v))
	})
}

// Fail returns a Single that fails synchronously with err.
func Fail[T any](err error) Single[T] {
	return New(func(_ context.Context, emit func(Outcome[T])) {
		emit(Failure[T](err))
	})
}

// Complete returns a Completable that completes synchronously.
func Complete() Completable {
	return Just(struct{}{})
}

// Subscribe starts the computation and delivers its outcome to cb.
// cb is invoked at most once per subscription. A panic raised by the source
// before it emits is delivered as a *PanicError failure; a panic raised by cb
// itself propagates.
func (s Single[T]) Subscribe(ctx context.Context, cb func(Outcome[T])) {
	var (
		once      sync.Once
		delivered atomic.Bool
	)
	emit := func(o Outcome[T]) {
		once.Do(func() {
			delivered.Store(true)
			cb(o)
		})
	}
	if s.source == nil {
		emit(Failure[T](ErrNilSingle))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if delivered.Load() {
				panic(r)
			}
			emit(Failure[T](&PanicError{Value: r}))
		}
	}()
	s.source(ctx, emit)
}

// Await subscribes and blocks until the outcome arrives or ctx ends. When
// ctx ends first, ctx.Err() is returned and the computation keeps running.
func (s Single[T]) Await(ctx context.Context) (T, error) {
	ch := make(chan Outcome[T], 1)
	s.Subscribe(ctx, func(o Outcome[T]) { ch <- o })

	select {
	case o := <-ch:
		return o.Get()
	case <-ctx.Done():
		// An outcome that raced with cancellation still wins.
		select {
		case o := <-ch:
			return o.Get()
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

// Wait subscribes with ctx and blocks until the outcome arrives. Unlike
// Await it never returns early; the computation decides how to react to ctx.
func (s Single[T]) Wait(ctx context.Context) (T, error) {
	ch := make(chan Outcome[T], 1)
	s.Subscribe(ctx, func(o Outcome[T]) { ch <- o })
	return (<-ch).Get()
}

func call[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (o Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			o = Failure[T](&PanicError{Value: r})
		}
	}()
	v, err := fn(ctx)
	return Of(v, err)
}
