package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nimburion/txscope/pkg/observability/logger"
	"github.com/nimburion/txscope/pkg/store/sqlconn"
	"github.com/nimburion/txscope/pkg/transaction"
)

// PostgreSQLAdapter provides PostgreSQL database connectivity with connection pooling
type PostgreSQLAdapter struct {
	db        *sql.DB
	logger    logger.Logger
	config    Config
	txOptions []transaction.Option
}

// Config holds PostgreSQL connection configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// NewPostgreSQLAdapter creates a new PostgreSQL adapter with connection pooling
func NewPostgreSQLAdapter(cfg Config, log logger.Logger) (*PostgreSQLAdapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("PostgreSQL connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
		"conn_max_idle_time", cfg.ConnMaxIdleTime,
	)

	return newAdapter(db, cfg, log), nil
}

// NewFromDB wraps an already opened pool. The caller keeps responsibility
// for having configured and pinged it.
func NewFromDB(db *sql.DB, cfg Config, log logger.Logger) *PostgreSQLAdapter {
	return newAdapter(db, cfg, log)
}

func newAdapter(db *sql.DB, cfg Config, log logger.Logger) *PostgreSQLAdapter {
	return &PostgreSQLAdapter{
		db:     db,
		logger: log,
		config: cfg,
	}
}

// DB returns the underlying *sql.DB for direct access when needed
func (a *PostgreSQLAdapter) DB() *sql.DB {
	return a.db
}

// SetTransactionOptions sets the options applied to every WithTransaction call.
func (a *PostgreSQLAdapter) SetTransactionOptions(opts ...transaction.Option) {
	a.txOptions = opts
}

// Ping verifies the database connection is alive
func (a *PostgreSQLAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// HealthCheck verifies the database connection is healthy with a timeout
func (a *PostgreSQLAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.logger.Error("PostgreSQL health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close gracefully closes the database connection
func (a *PostgreSQLAdapter) Close() error {
	a.logger.Info("closing PostgreSQL connection")

	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close PostgreSQL connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	a.logger.Info("PostgreSQL connection closed successfully")
	return nil
}

// WithTransaction executes fn inside a BEGIN/COMMIT block on a dedicated
// pooled connection. If fn returns an error the block is rolled back and
// that error is returned unchanged. A panic in fn is re-raised after the
// rollback.
func (a *PostgreSQLAdapter) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			a.logger.Error("failed to release connection", "error", cerr)
		}
	}()

	txConn := sqlconn.New(conn, sqlconn.Postgres)
	_, err = transaction.Run(ctx, txConn, func(txCtx context.Context) (struct{}, error) {
		return struct{}{}, fn(sqlconn.WithConn(txCtx, txConn))
	}, a.txOptions...)
	return err
}

// ExecContext executes a query on the transaction connection from context if available
// Otherwise uses the regular database connection
func (a *PostgreSQLAdapter) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if conn, ok := sqlconn.ConnFromContext(ctx); ok {
		return conn.ExecContext(queryCtx, query, args...)
	}
	return a.db.ExecContext(queryCtx, query, args...)
}

// QueryContext executes a query on the transaction connection from context if available
// Otherwise uses the regular database connection.
// The query timeout is not applied: cancelling it would close the returned rows.
func (a *PostgreSQLAdapter) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if conn, ok := sqlconn.ConnFromContext(ctx); ok {
		return conn.QueryContext(ctx, query, args...)
	}
	return a.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns a single row on the transaction connection
// from context if available. Otherwise uses the regular database connection
func (a *PostgreSQLAdapter) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if conn, ok := sqlconn.ConnFromContext(ctx); ok {
		return conn.QueryRowContext(ctx, query, args...)
	}
	return a.db.QueryRowContext(ctx, query, args...)
}

func (a *PostgreSQLAdapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}
