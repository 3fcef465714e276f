package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nimburion/txscope/pkg/transaction"
)

// TransactionObserver records scope outcomes as Prometheus metrics. It
// implements transaction.Observer.
type TransactionObserver struct {
	total      *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
}

// NewTransactionObserver creates the transaction collectors and registers
// them on r.
func NewTransactionObserver(r *Registry) (*TransactionObserver, error) {
	o := &TransactionObserver{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txscope_transactions_total",
				Help: "Total number of scoped executions by result",
			},
			[]string{"result"},
		),
		suppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txscope_suppressed_errors_total",
				Help: "Cleanup failures that did not change the outcome, by protocol step",
			},
			[]string{"step"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txscope_transaction_duration_seconds",
				Help:    "Duration of scoped executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "txscope_transactions_in_flight",
				Help: "Number of scoped executions between begin and done",
			},
		),
	}

	for _, c := range []prometheus.Collector{o.total, o.suppressed, o.duration, o.inFlight} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnTransition implements transaction.Observer.
func (o *TransactionObserver) OnTransition(_ context.Context, _ string, from, _ transaction.State) {
	if from == transaction.StateIdle {
		o.inFlight.Inc()
	}
}

// OnSuppressed implements transaction.Observer.
func (o *TransactionObserver) OnSuppressed(_ context.Context, _ string, during transaction.State, _ error) {
	o.suppressed.WithLabelValues(during.String()).Inc()
}

// OnDone implements transaction.Observer.
func (o *TransactionObserver) OnDone(_ context.Context, _ string, result transaction.Result, _ error, elapsed time.Duration) {
	o.inFlight.Dec()
	o.total.WithLabelValues(string(result)).Inc()
	o.duration.WithLabelValues(string(result)).Observe(elapsed.Seconds())
}
