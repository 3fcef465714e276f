package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimburion/txscope/pkg/observability/logger"
	"github.com/nimburion/txscope/pkg/store/sqlconn"
	"github.com/nimburion/txscope/pkg/testutil"
	"github.com/nimburion/txscope/pkg/transaction"
)

// TestPostgreSQLAdapter_Integration runs the transaction scope against a real
// PostgreSQL server started with testcontainers.
func TestPostgreSQLAdapter_Integration(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	log, err := logger.NewZapLogger(logger.Config{Level: logger.InfoLevel, Format: logger.JSONFormat})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	adapter, err := NewPostgreSQLAdapter(Config{
		URL:             connStr,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}, log)
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}
	defer adapter.Close()

	if _, err := adapter.ExecContext(ctx, `CREATE TABLE items (id SERIAL PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}

	count := func(t *testing.T, value string) int {
		t.Helper()
		var n int
		if err := adapter.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE value = $1", value).Scan(&n); err != nil {
			t.Fatalf("Failed to query count: %v", err)
		}
		return n
	}

	t.Run("Commit", func(t *testing.T) {
		err := adapter.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := adapter.ExecContext(txCtx, "INSERT INTO items (value) VALUES ($1)", "first"); err != nil {
				return err
			}
			_, err := adapter.ExecContext(txCtx, "INSERT INTO items (value) VALUES ($1)", "first")
			return err
		})
		if err != nil {
			t.Fatalf("Transaction failed: %v", err)
		}
		if n := count(t, "first"); n != 2 {
			t.Errorf("Expected 2 rows, got %d", n)
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		workErr := errors.New("abort")
		err := adapter.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := adapter.ExecContext(txCtx, "INSERT INTO items (value) VALUES ($1)", "discarded"); err != nil {
				return err
			}
			return workErr
		})
		if err != workErr {
			t.Fatalf("Expected work error, got %v", err)
		}
		if n := count(t, "discarded"); n != 0 {
			t.Errorf("Expected 0 rows after rollback, got %d", n)
		}
	})

	t.Run("StatementErrorRollsBack", func(t *testing.T) {
		err := adapter.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := adapter.ExecContext(txCtx, "INSERT INTO items (value) VALUES ($1)", "partial"); err != nil {
				return err
			}
			_, err := adapter.ExecContext(txCtx, "INSERT INTO items (value) VALUES (NULL)")
			return err
		})
		if err == nil {
			t.Fatal("Expected NOT NULL violation")
		}
		if n := count(t, "partial"); n != 0 {
			t.Errorf("Expected 0 rows after rollback, got %d", n)
		}
	})

	// With a single pooled connection, the next transaction reuses the same
	// session; it must not still be inside the previous block.
	t.Run("ConnectionReturnedInAutocommit", func(t *testing.T) {
		err := adapter.WithTransaction(ctx, func(txCtx context.Context) error {
			return errors.New("abort")
		})
		if err == nil {
			t.Fatal("Expected error")
		}

		conn, err := adapter.DB().Conn(ctx)
		if err != nil {
			t.Fatalf("Failed to acquire connection: %v", err)
		}
		defer conn.Close()

		txConn := sqlconn.New(conn, sqlconn.Postgres)
		_, err = transaction.Run(ctx, txConn, func(txCtx context.Context) (int, error) {
			_, err := txConn.ExecContext(txCtx, "INSERT INTO items (value) VALUES ($1)", "reused")
			return 0, err
		})
		if err != nil {
			t.Fatalf("Expected a fresh transaction on the reused session, got %v", err)
		}
		if n := count(t, "reused"); n != 1 {
			t.Errorf("Expected 1 row, got %d", n)
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		if err := adapter.HealthCheck(ctx); err != nil {
			t.Errorf("Health check failed: %v", err)
		}
	})
}
