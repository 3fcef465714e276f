package transaction

import (
	"github.com/google/uuid"

	"github.com/nimburion/txscope/pkg/observability/logger"
)

// Option configures a scope.
type Option func(*options)

type options struct {
	observers []Observer
	newID     func() string
}

// WithObserver adds an observer. Without observers, cleanup failures are
// dropped silently.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observers = append(opts.observers, o)
		}
	}
}

// WithLogger is shorthand for WithObserver(NewLoggingObserver(log)).
func WithLogger(log logger.Logger) Option {
	return func(opts *options) {
		if log != nil {
			opts.observers = append(opts.observers, NewLoggingObserver(log))
		}
	}
}

// WithIDGenerator overrides how invocation IDs are produced.
func WithIDGenerator(fn func() string) Option {
	return func(opts *options) {
		if fn != nil {
			opts.newID = fn
		}
	}
}

func newOptions(opts []Option) options {
	o := options{newID: uuid.NewString}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o options) observer() Observer {
	switch len(o.observers) {
	case 0:
		return nil
	case 1:
		return o.observers[0]
	default:
		return MultiObserver(o.observers...)
	}
}
