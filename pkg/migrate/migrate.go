// Package migrate applies versioned SQL migrations, each inside its own
// transaction scope.
package migrate

import (
	"context"
	"fmt"

	"github.com/nimburion/txscope/pkg/config"
	"github.com/nimburion/txscope/pkg/store"
	"github.com/nimburion/txscope/pkg/transaction"
)

// Database is what the manager needs from a storage adapter.
type Database interface {
	store.Executor
	transaction.Manager
}

// Migration represents a database migration with up and down SQL scripts.
type Migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// PendingMigration contains an unapplied migration entry for status output.
type PendingMigration struct {
	Version int64  `yaml:"version"`
	Name    string `yaml:"name"`
}

// Status lists applied versions in ascending order and the migrations
// still to apply.
type Status struct {
	AppliedVersions []int64            `yaml:"applied"`
	Pending         []PendingMigration `yaml:"pending"`
}

// Dialect holds the bookkeeping statements for one database type.
type Dialect struct {
	Name          string
	createTable   string
	selectApplied string
	selectDesc    string
	insertVersion string
	deleteVersion string
}

// Postgres bookkeeping statements.
var Postgres = Dialect{
	Name: config.DatabaseTypePostgres,
	createTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	selectApplied: `SELECT version FROM schema_migrations`,
	selectDesc:    `SELECT version FROM schema_migrations ORDER BY version DESC`,
	insertVersion: `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, NOW())`,
	deleteVersion: `DELETE FROM schema_migrations WHERE version = $1`,
}

// MySQL bookkeeping statements. DDL in a migration commits implicitly on
// MySQL, so only DML migrations are atomic there.
var MySQL = Dialect{
	Name: config.DatabaseTypeMySQL,
	createTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	selectApplied: `SELECT version FROM schema_migrations`,
	selectDesc:    `SELECT version FROM schema_migrations ORDER BY version DESC`,
	insertVersion: `INSERT INTO schema_migrations (version, applied_at) VALUES (?, NOW())`,
	deleteVersion: `DELETE FROM schema_migrations WHERE version = ?`,
}

// DialectFor returns the dialect for a configured database type.
func DialectFor(dbType string) (Dialect, error) {
	switch dbType {
	case config.DatabaseTypePostgres:
		return Postgres, nil
	case config.DatabaseTypeMySQL:
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("no migration dialect for database type %q", dbType)
	}
}

func (d Dialect) ensureTable(ctx context.Context, db store.Executor) error {
	if _, err := db.ExecContext(ctx, d.createTable); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	return nil
}
