package transaction

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nimburion/txscope/pkg/async"
	"github.com/nimburion/txscope/pkg/observability/logger"
)

// Wrap returns a Single that runs work inside a transaction on conn.
//
// Each subscription to the returned Single drives one invocation:
//
//  1. autocommit is disabled; if that fails the invocation fails with the
//     same error and work is never started
//  2. work is subscribed exactly once
//  3. on success the transaction is committed, autocommit is restored, and
//     the value is emitted unless the commit failed, in which case the
//     commit error is emitted
//  4. on failure the transaction is rolled back, autocommit is restored, and
//     the work's own error is emitted
//
// Rollback and restore failures are never emitted; they are reported to
// observers only. No step is retried.
//
// Panics if conn is nil.
func Wrap[T any](conn Connection, work async.Single[T], opts ...Option) async.Single[T] {
	if conn == nil {
		panic("transaction.Wrap: conn must not be nil")
	}
	o := newOptions(opts)

	return async.New(func(ctx context.Context, emit func(async.Outcome[T])) {
		id := o.newID()
		observer := o.observer()
		ctx = logger.ContextWithTxID(ctx, id)
		if d, ok := observer.(ContextDecorator); ok {
			ctx = d.DecorateContext(ctx, id)
		}
		inv := &invocation[T]{
			id:       id,
			ctx:      ctx,
			conn:     conn,
			work:     work,
			observer: observer,
			emit:     emit,
			started:  time.Now(),
		}
		inv.begin()
	})
}

// Run executes fn inside a transaction on conn and blocks until the protocol
// reaches its terminal state, even if ctx ends earlier. A panic in fn is
// re-raised on the caller's goroutine after the rollback.
//
// Panics if conn or fn is nil.
func Run[T any](ctx context.Context, conn Connection, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	if fn == nil {
		panic("transaction.Run: fn must not be nil")
	}

	// Only a panic raised by fn itself is re-raised; a *async.PanicError that
	// fn returns or that comes from the connection stays an error.
	var fnPanic struct {
		raised bool
		value  any
	}
	work := async.FromFunc(func(ctx context.Context) (T, error) {
		defer func() {
			if r := recover(); r != nil {
				fnPanic.raised, fnPanic.value = true, r
				panic(r)
			}
		}()
		return fn(ctx)
	})

	v, err := Wrap(conn, work, opts...).Wait(ctx)
	if fnPanic.raised {
		panic(fnPanic.value)
	}
	return v, err
}

// IDFromContext returns the invocation ID visible to the unit of work.
func IDFromContext(ctx context.Context) string {
	return logger.TxIDFromContext(ctx)
}

// invocation is the state machine for one subscription of a wrapped Single.
// Steps run strictly one after another; each continuation starts the next.
type invocation[T any] struct {
	id       string
	ctx      context.Context
	conn     Connection
	work     async.Single[T]
	observer Observer
	emit     func(async.Outcome[T])
	started  time.Time

	state  atomic.Int32
	result Result
}

func (inv *invocation[T]) begin() {
	inv.transition(StateAutocommitDisabling)
	inv.conn.SetAutoCommit(inv.ctx, false).Subscribe(inv.ctx, func(o async.Outcome[struct{}]) {
		if err := o.Err(); err != nil {
			inv.result = ResultBeginFailed
			inv.finish(async.Failure[T](err))
			return
		}
		inv.run()
	})
}

func (inv *invocation[T]) run() {
	inv.transition(StateRunning)
	inv.work.Subscribe(inv.ctx, func(o async.Outcome[T]) {
		if o.IsSuccess() {
			inv.commit(o.Value())
			return
		}
		inv.rollback(o.Err())
	})
}

func (inv *invocation[T]) commit(value T) {
	inv.transition(StateCommitting)
	inv.conn.Commit(inv.ctx).Subscribe(inv.ctx, func(o async.Outcome[struct{}]) {
		if err := o.Err(); err != nil {
			inv.result = ResultCommitFailed
			inv.restore(async.Failure[T](err))
			return
		}
		inv.result = ResultCommitted
		inv.restore(async.Success(value))
	})
}

func (inv *invocation[T]) rollback(cause error) {
	inv.transition(StateRollingBack)
	inv.conn.Rollback(inv.ctx).Subscribe(inv.ctx, func(o async.Outcome[struct{}]) {
		if err := o.Err(); err != nil {
			inv.suppress(StateRollingBack, err)
		}
		inv.result = ResultRolledBack
		inv.restore(async.Failure[T](cause))
	})
}

// restore re-enables autocommit and then emits out, whatever restore did.
func (inv *invocation[T]) restore(out async.Outcome[T]) {
	inv.transition(StateAutocommitRestoring)
	inv.conn.SetAutoCommit(inv.ctx, true).Subscribe(inv.ctx, func(o async.Outcome[struct{}]) {
		if err := o.Err(); err != nil {
			inv.suppress(StateAutocommitRestoring, err)
		}
		inv.finish(out)
	})
}

func (inv *invocation[T]) finish(out async.Outcome[T]) {
	inv.transition(StateDone)
	if inv.observer != nil {
		inv.observer.OnDone(inv.ctx, inv.id, inv.result, out.Err(), time.Since(inv.started))
	}
	inv.emit(out)
}

func (inv *invocation[T]) suppress(during State, err error) {
	if inv.observer != nil {
		inv.observer.OnSuppressed(inv.ctx, inv.id, during, err)
	}
}

func (inv *invocation[T]) transition(to State) {
	from := State(inv.state.Load())
	if !from.CanTransition(to) {
		panic(fmt.Sprintf("transaction: illegal transition %s -> %s", from, to))
	}
	inv.state.Store(int32(to))
	if inv.observer != nil {
		inv.observer.OnTransition(inv.ctx, inv.id, from, to)
	}
}
