package store

import (
	"context"
	"database/sql"

	"github.com/nimburion/txscope/pkg/transaction"
)

// Executor runs SQL on the connection bound to ctx by WithTransaction, or on
// the pool when ctx carries none.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Adapter is the contract shared by the SQL storage adapters.
type Adapter interface {
	transaction.Manager
	Executor
	HealthCheck(ctx context.Context) error
	Close() error
	SetTransactionOptions(opts ...transaction.Option)
}
