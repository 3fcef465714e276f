package async

import "context"

// Map transforms the success value of s. Failures pass through unchanged.
// A panic in fn becomes a *PanicError failure.
func Map[T, R any](s Single[T], fn func(T) R) Single[R] {
	return New(func(ctx context.Context, emit func(Outcome[R])) {
		s.Subscribe(ctx, func(o Outcome[T]) {
			if !o.IsSuccess() {
				emit(Failure[R](o.Err()))
				return
			}
			emit(call(ctx, func(context.Context) (R, error) {
				return fn(o.Value()), nil
			}))
		})
	})
}

// FlatMap sequences s with the Single produced from its success value.
func FlatMap[T, R any](s Single[T], fn func(T) Single[R]) Single[R] {
	return New(func(ctx context.Context, emit func(Outcome[R])) {
		s.Subscribe(ctx, func(o Outcome[T]) {
			if !o.IsSuccess() {
				emit(Failure[R](o.Err()))
				return
			}
			next, err := guard(func() Single[R] { return fn(o.Value()) })
			if err != nil {
				emit(Failure[R](err))
				return
			}
			next.Subscribe(ctx, emit)
		})
	})
}

// AndThen runs c and, once it completes, subscribes to next. A failure of c
// is propagated and next is never started.
func AndThen[T any](c Completable, next Single[T]) Single[T] {
	return FlatMap(c, func(struct{}) Single[T] { return next })
}

// Then runs c after s succeeds and re-emits the value of s. A failure of c
// replaces the value.
func Then[T any](s Single[T], c func(T) Completable) Single[T] {
	return FlatMap(s, func(v T) Single[T] {
		return Map(c(v), func(struct{}) T { return v })
	})
}

// OnErrorResumeNext substitutes a failure of s with the Single returned by fn.
func OnErrorResumeNext[T any](s Single[T], fn func(error) Single[T]) Single[T] {
	return New(func(ctx context.Context, emit func(Outcome[T])) {
		s.Subscribe(ctx, func(o Outcome[T]) {
			if o.IsSuccess() {
				emit(o)
				return
			}
			next, err := guard(func() Single[T] { return fn(o.Err()) })
			if err != nil {
				emit(Failure[T](err))
				return
			}
			next.Subscribe(ctx, emit)
		})
	})
}

// OnErrorMap replaces the error of a failed s with fn(err).
func OnErrorMap[T any](s Single[T], fn func(error) error) Single[T] {
	return OnErrorResumeNext(s, func(err error) Single[T] {
		return Fail[T](fn(err))
	})
}

// OnErrorComplete turns any failure of c into completion.
func OnErrorComplete(c Completable) Completable {
	return OnErrorResumeNext(c, func(error) Completable { return Complete() })
}

func guard[T any](fn func() T) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(), nil
}
