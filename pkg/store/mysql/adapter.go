package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/nimburion/txscope/pkg/observability/logger"
	"github.com/nimburion/txscope/pkg/store/sqlconn"
	"github.com/nimburion/txscope/pkg/transaction"
)

// MySQLAdapter provides MySQL connectivity with pooled connections.
type MySQLAdapter struct {
	db        *sql.DB
	logger    logger.Logger
	config    Config
	txOptions []transaction.Option
}

// Config holds MySQL configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// NewMySQLAdapter opens the pool, pings it once and returns the adapter.
// Schema migrations are out of scope.
func NewMySQLAdapter(cfg Config, log logger.Logger) (*MySQLAdapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("mysql", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql database: %w", err)
	}

	log.Info("MySQL connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
		"conn_max_idle_time", cfg.ConnMaxIdleTime,
	)

	return newAdapter(db, cfg, log), nil
}

// NewFromDB wraps an already opened pool. The caller keeps responsibility
// for having configured and pinged it.
func NewFromDB(db *sql.DB, cfg Config, log logger.Logger) *MySQLAdapter {
	return newAdapter(db, cfg, log)
}

func newAdapter(db *sql.DB, cfg Config, log logger.Logger) *MySQLAdapter {
	return &MySQLAdapter{db: db, logger: log, config: cfg}
}

// DB returns the underlying pool.
func (a *MySQLAdapter) DB() *sql.DB {
	return a.db
}

// SetTransactionOptions sets the options applied to every WithTransaction call.
func (a *MySQLAdapter) SetTransactionOptions(opts ...transaction.Option) {
	a.txOptions = opts
}

// Ping performs a basic connectivity check.
func (a *MySQLAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// HealthCheck pings the database with a short timeout.
func (a *MySQLAdapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.db.PingContext(hcCtx); err != nil {
		a.logger.Error("MySQL health check failed", "error", err)
		return fmt.Errorf("mysql health check failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (a *MySQLAdapter) Close() error {
	a.logger.Info("closing MySQL connection")
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close MySQL connection", "error", err)
		return fmt.Errorf("failed to close mysql connection: %w", err)
	}
	a.logger.Info("MySQL connection closed successfully")
	return nil
}

// WithTransaction pins a pooled connection, switches autocommit off, runs fn
// and commits or rolls back. Autocommit is switched back on before the
// connection returns to the pool. The error from fn is returned unchanged;
// deadlocks and timeouts are not retried.
func (a *MySQLAdapter) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire mysql connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			a.logger.Error("failed to release mysql connection", "error", cerr)
		}
	}()

	txConn := sqlconn.New(conn, sqlconn.MySQL)
	_, err = transaction.Run(ctx, txConn, func(txCtx context.Context) (struct{}, error) {
		return struct{}{}, fn(sqlconn.WithConn(txCtx, txConn))
	}, a.txOptions...)
	return err
}

// ExecContext runs on the transaction connection when ctx carries one.
func (a *MySQLAdapter) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if conn, ok := sqlconn.ConnFromContext(ctx); ok {
		return conn.ExecContext(queryCtx, query, args...)
	}
	return a.db.ExecContext(queryCtx, query, args...)
}

// QueryContext runs on the transaction connection when ctx carries one.
func (a *MySQLAdapter) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if conn, ok := sqlconn.ConnFromContext(ctx); ok {
		return conn.QueryContext(ctx, query, args...)
	}
	return a.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs on the transaction connection when ctx carries one.
func (a *MySQLAdapter) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if conn, ok := sqlconn.ConnFromContext(ctx); ok {
		return conn.QueryRowContext(ctx, query, args...)
	}
	return a.db.QueryRowContext(ctx, query, args...)
}

func (a *MySQLAdapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}
