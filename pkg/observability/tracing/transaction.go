package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/txscope/pkg/transaction"
)

// Attribute keys set on transaction spans.
const (
	AttrTxID     = attribute.Key("txscope.id")
	AttrTxResult = attribute.Key("txscope.result")
	AttrTxStep   = attribute.Key("txscope.step")
)

// TransactionObserver emits one "DB db.transaction" span per scoped
// execution, with an event per state change. Spans started by the unit of
// work are its children. Suppressed cleanup errors are recorded on the span
// without affecting its status.
type TransactionObserver struct {
	system string

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTransactionObserver creates a TransactionObserver. system is reported as
// db.system and may be empty.
func NewTransactionObserver(system string) *TransactionObserver {
	return &TransactionObserver{
		system: system,
		spans:  make(map[string]trace.Span),
	}
}

// DecorateContext implements transaction.ContextDecorator. It starts the
// transaction span so that spans created by the unit of work are its children.
func (o *TransactionObserver) DecorateContext(ctx context.Context, id string) context.Context {
	ctx, _ = o.start(ctx, id)
	return ctx
}

// OnTransition implements transaction.Observer.
func (o *TransactionObserver) OnTransition(ctx context.Context, id string, from, to transaction.State) {
	if from == transaction.StateIdle && o.span(id) == nil {
		o.start(ctx, id)
	}

	if span := o.span(id); span != nil {
		span.AddEvent(to.String())
	}
}

// OnSuppressed implements transaction.Observer.
func (o *TransactionObserver) OnSuppressed(_ context.Context, id string, during transaction.State, err error) {
	if span := o.span(id); span != nil {
		span.RecordError(err, trace.WithAttributes(AttrTxStep.String(during.String())))
	}
}

// OnDone implements transaction.Observer.
func (o *TransactionObserver) OnDone(_ context.Context, id string, result transaction.Result, err error, _ time.Duration) {
	o.mu.Lock()
	span, ok := o.spans[id]
	delete(o.spans, id)
	o.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(AttrTxResult.String(string(result)))
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}

func (o *TransactionObserver) span(id string) trace.Span {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.spans[id]
}

func (o *TransactionObserver) start(ctx context.Context, id string) (context.Context, trace.Span) {
	opts := []DatabaseSpanOption{WithAttributes(AttrTxID.String(id))}
	if o.system != "" {
		opts = append(opts, WithDBSystem(o.system))
	}
	ctx, span := StartDatabaseSpan(ctx, SpanOperationDBTx, opts...)
	o.mu.Lock()
	o.spans[id] = span
	o.mu.Unlock()
	return ctx, span
}
