// Package sqlconn exposes a dedicated database/sql connection as a
// transaction.Connection.
package sqlconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nimburion/txscope/pkg/async"
)

// Dialect holds the statements used to drive transactions on one database.
// An empty statement is skipped.
type Dialect struct {
	Name string
	// DisableAutoCommit opens a transaction.
	DisableAutoCommit string
	// EnableAutoCommit returns the session to autocommit mode.
	EnableAutoCommit string
	Commit           string
	Rollback         string
}

var (
	// Postgres has no session autocommit switch; a transaction is an explicit BEGIN block.
	Postgres = Dialect{
		Name:              "postgres",
		DisableAutoCommit: "BEGIN",
		Commit:            "COMMIT",
		Rollback:          "ROLLBACK",
	}

	// MySQL toggles the session autocommit variable.
	MySQL = Dialect{
		Name:              "mysql",
		DisableAutoCommit: "SET autocommit = 0",
		EnableAutoCommit:  "SET autocommit = 1",
		Commit:            "COMMIT",
		Rollback:          "ROLLBACK",
	}
)

// Conn drives transactions on a single *sql.Conn. It is not safe for use by
// more than one scope at a time.
type Conn struct {
	conn    *sql.Conn
	dialect Dialect
	// open is set once autocommit is disabled and cleared by a successful
	// commit or rollback.
	open atomic.Bool
}

// New wraps conn. Panics if conn is nil.
func New(conn *sql.Conn, dialect Dialect) *Conn {
	if conn == nil {
		panic("sqlconn.New: conn must not be nil")
	}
	return &Conn{conn: conn, dialect: dialect}
}

// Dialect returns the dialect in use.
func (c *Conn) Dialect() Dialect {
	return c.dialect
}

// InTransaction reports whether a transaction opened by this Conn is still pending.
func (c *Conn) InTransaction() bool {
	return c.open.Load()
}

// SetAutoCommit implements transaction.Connection.
//
// Re-enabling autocommit while a commit never went through rolls the pending
// work back first, so a session never leaves with it silently committed.
// Restoration ignores ctx cancellation: a connection must not go back to the
// pool mid-transaction.
func (c *Conn) SetAutoCommit(ctx context.Context, enabled bool) async.Completable {
	if !enabled {
		return c.statement(ctx, c.dialect.DisableAutoCommit, func() { c.open.Store(true) })
	}

	restoreCtx := context.WithoutCancel(ctx)
	return async.FromFunc(func(context.Context) (struct{}, error) {
		var rollbackErr error
		if c.open.Swap(false) {
			rollbackErr = c.exec(restoreCtx, c.dialect.Rollback)
		}
		// autocommit is re-enabled even when the rollback failed.
		return struct{}{}, errors.Join(rollbackErr, c.exec(restoreCtx, c.dialect.EnableAutoCommit))
	})
}

// Commit implements transaction.Connection.
func (c *Conn) Commit(ctx context.Context) async.Completable {
	return c.statement(ctx, c.dialect.Commit, func() { c.open.Store(false) })
}

// Rollback implements transaction.Connection. It ignores ctx cancellation
// and is attempted once: the transaction counts as closed even if it fails.
func (c *Conn) Rollback(ctx context.Context) async.Completable {
	rollbackCtx := context.WithoutCancel(ctx)
	return async.FromFunc(func(context.Context) (struct{}, error) {
		c.open.Store(false)
		return struct{}{}, c.exec(rollbackCtx, c.dialect.Rollback)
	})
}

// ExecContext executes a statement on the underlying connection.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the underlying connection.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on the underlying connection.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *Conn) statement(ctx context.Context, query string, onSuccess func()) async.Completable {
	return async.FromFunc(func(context.Context) (struct{}, error) {
		if err := c.exec(ctx, query); err != nil {
			return struct{}{}, err
		}
		onSuccess()
		return struct{}{}, nil
	})
}

func (c *Conn) exec(ctx context.Context, query string) error {
	if query == "" {
		return nil
	}
	if _, err := c.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%s: %s: %w", c.dialect.Name, query, err)
	}
	return nil
}
