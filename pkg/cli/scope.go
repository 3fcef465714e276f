package cli

import (
	"context"
	"fmt"

	"github.com/nimburion/txscope/pkg/config"
	"github.com/nimburion/txscope/pkg/observability/logger"
	"github.com/nimburion/txscope/pkg/observability/metrics"
	"github.com/nimburion/txscope/pkg/observability/tracing"
	"github.com/nimburion/txscope/pkg/store"
	"github.com/nimburion/txscope/pkg/transaction"
	"github.com/nimburion/txscope/pkg/version"
)

// scopeEnv is an adapter whose transactions report to metrics, tracing and
// (optionally) the logger.
type scopeEnv struct {
	adapter  store.Adapter
	registry *metrics.Registry
	closers  []func()
}

func (e *environment) openScope(ctx context.Context, cfg *config.Config, log logger.Logger) (*scopeEnv, error) {
	s := &scopeEnv{registry: metrics.NewRegistry()}

	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.closers = append(s.closers, func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	})

	txMetrics, err := metrics.NewTransactionObserver(s.registry)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	adapter, err := e.opts.NewAdapter(cfg.Database, log)
	if err != nil {
		s.close()
		return nil, err
	}
	s.adapter = adapter
	s.closers = append(s.closers, func() { _ = adapter.Close() })

	txOpts := []transaction.Option{
		transaction.WithObserver(txMetrics),
		transaction.WithObserver(tracing.NewTransactionObserver(dbSystem(cfg.Database.Type))),
	}
	if cfg.Transaction.LogSuppressedErrors {
		txOpts = append(txOpts, transaction.WithLogger(log))
	}
	adapter.SetTransactionOptions(txOpts...)

	return s, nil
}

// close releases resources in reverse order of acquisition.
func (s *scopeEnv) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// dbSystem maps a database type to the OpenTelemetry db.system value.
func dbSystem(dbType string) string {
	if dbType == config.DatabaseTypePostgres {
		return "postgresql"
	}
	return dbType
}
