package transaction

import (
	"context"
	"time"

	"github.com/nimburion/txscope/pkg/observability/logger"
)

// Observer receives lifecycle notifications from a scope. Callbacks run on
// the goroutine driving the protocol and must not block.
type Observer interface {
	// OnTransition is called on every state change.
	OnTransition(ctx context.Context, id string, from, to State)

	// OnSuppressed is called when a rollback or autocommit restore fails.
	// The error never reaches the caller.
	OnSuppressed(ctx context.Context, id string, during State, err error)

	// OnDone is called once with the final classification and error (nil on success).
	OnDone(ctx context.Context, id string, result Result, err error, elapsed time.Duration)
}

// ContextDecorator is an optional Observer extension. DecorateContext is
// called once per invocation before the first transition; the returned
// context is handed to every later callback and to the unit of work.
type ContextDecorator interface {
	DecorateContext(ctx context.Context, id string) context.Context
}

// MultiObserver fans notifications out to every non-nil observer, in order.
func MultiObserver(observers ...Observer) Observer {
	filtered := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

type multiObserver []Observer

func (m multiObserver) DecorateContext(ctx context.Context, id string) context.Context {
	for _, o := range m {
		if d, ok := o.(ContextDecorator); ok {
			ctx = d.DecorateContext(ctx, id)
		}
	}
	return ctx
}

func (m multiObserver) OnTransition(ctx context.Context, id string, from, to State) {
	for _, o := range m {
		o.OnTransition(ctx, id, from, to)
	}
}

func (m multiObserver) OnSuppressed(ctx context.Context, id string, during State, err error) {
	for _, o := range m {
		o.OnSuppressed(ctx, id, during, err)
	}
}

func (m multiObserver) OnDone(ctx context.Context, id string, result Result, err error, elapsed time.Duration) {
	for _, o := range m {
		o.OnDone(ctx, id, result, err, elapsed)
	}
}

// LoggingObserver writes scope activity to a Logger: transitions at debug,
// suppressed cleanup errors at warn, and the final result at debug or info.
type LoggingObserver struct {
	log logger.Logger
}

// NewLoggingObserver creates a LoggingObserver.
func NewLoggingObserver(log logger.Logger) *LoggingObserver {
	return &LoggingObserver{log: log}
}

// OnTransition implements Observer.
func (o *LoggingObserver) OnTransition(ctx context.Context, _ string, from, to State) {
	o.log.WithContext(ctx).Debug("transaction state changed", "from", from.String(), "to", to.String())
}

// OnSuppressed implements Observer.
func (o *LoggingObserver) OnSuppressed(ctx context.Context, _ string, during State, err error) {
	o.log.WithContext(ctx).Warn("transaction cleanup failed", "during", during.String(), "error", err)
}

// OnDone implements Observer.
func (o *LoggingObserver) OnDone(ctx context.Context, _ string, result Result, err error, elapsed time.Duration) {
	log := o.log.WithContext(ctx)
	if err != nil {
		log.Info("transaction finished", "result", string(result), "error", err, "elapsed", elapsed)
		return
	}
	log.Debug("transaction finished", "result", string(result), "elapsed", elapsed)
}
