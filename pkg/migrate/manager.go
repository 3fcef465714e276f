package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nimburion/txscope/pkg/observability/logger"
	"github.com/nimburion/txscope/pkg/store"
)

var migrationNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_\-]+)\.(up|down)\.sql$`)

// Manager applies and reverts migrations. Each step runs its script and
// its schema_migrations bookkeeping in one transaction.
type Manager struct {
	db         Database
	dialect    Dialect
	migrations []Migration
	log        logger.Logger
}

// NewManager loads the migrations found in dir.
func NewManager(db Database, dialect Dialect, files fs.FS, dir string, log logger.Logger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if files == nil {
		return nil, errors.New("migration files filesystem is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("migration directory is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	migrations, err := loadMigrations(files, dir)
	if err != nil {
		return nil, err
	}

	return &Manager{db: db, dialect: dialect, migrations: migrations, log: log}, nil
}

// Migrations returns the loaded migrations in version order.
func (m *Manager) Migrations() []Migration {
	return append([]Migration(nil), m.migrations...)
}

// Up applies all pending migrations in order and stops at the first failure.
func (m *Manager) Up(ctx context.Context) (int, error) {
	if err := m.dialect.ensureTable(ctx, m.db); err != nil {
		return 0, err
	}

	applied, err := m.appliedSet(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, migration := range m.migrations {
		if _, done := applied[migration.Version]; done {
			continue
		}

		err := m.db.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := m.db.ExecContext(txCtx, migration.UpSQL); err != nil {
				return err
			}
			if _, err := m.db.ExecContext(txCtx, m.dialect.insertVersion, migration.Version); err != nil {
				return fmt.Errorf("record version: %w", err)
			}
			return nil
		})
		if err != nil {
			return count, fmt.Errorf("apply migration %d_%s: %w", migration.Version, migration.Name, err)
		}

		m.log.Info("migration applied", "version", migration.Version, "name", migration.Name)
		count++
	}

	return count, nil
}

// Down reverts up to steps migrations, newest first.
func (m *Manager) Down(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		return 0, errors.New("steps must be greater than zero")
	}
	if err := m.dialect.ensureTable(ctx, m.db); err != nil {
		return 0, err
	}

	applied, err := m.appliedVersionsDesc(ctx)
	if err != nil {
		return 0, err
	}
	if steps > len(applied) {
		steps = len(applied)
	}

	reverted := 0
	for _, version := range applied[:steps] {
		migration, ok := m.migrationByVersion(version)
		if !ok {
			return reverted, fmt.Errorf("migration definition not found for applied version %d", version)
		}
		if strings.TrimSpace(migration.DownSQL) == "" {
			return reverted, fmt.Errorf("down migration missing for version %d", version)
		}

		err := m.db.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := m.db.ExecContext(txCtx, migration.DownSQL); err != nil {
				return err
			}
			if _, err := m.db.ExecContext(txCtx, m.dialect.deleteVersion, version); err != nil {
				return fmt.Errorf("delete version record: %w", err)
			}
			return nil
		})
		if err != nil {
			return reverted, fmt.Errorf("revert migration %d_%s: %w", migration.Version, migration.Name, err)
		}

		m.log.Info("migration reverted", "version", migration.Version, "name", migration.Name)
		reverted++
	}

	return reverted, nil
}

// Status reports applied and pending migrations.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	if err := m.dialect.ensureTable(ctx, m.db); err != nil {
		return nil, err
	}

	appliedSet, err := m.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	appliedVersions := make([]int64, 0, len(appliedSet))
	for version := range appliedSet {
		appliedVersions = append(appliedVersions, version)
	}
	sort.Slice(appliedVersions, func(i, j int) bool {
		return appliedVersions[i] < appliedVersions[j]
	})

	pending := make([]PendingMigration, 0)
	for _, migration := range m.migrations {
		if _, exists := appliedSet[migration.Version]; !exists {
			pending = append(pending, PendingMigration{Version: migration.Version, Name: migration.Name})
		}
	}

	return &Status{AppliedVersions: appliedVersions, Pending: pending}, nil
}

func (m *Manager) appliedSet(ctx context.Context) (map[int64]struct{}, error) {
	versions, err := m.queryVersions(ctx, m.dialect.selectApplied)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(versions))
	for _, version := range versions {
		set[version] = struct{}{}
	}
	return set, nil
}

func (m *Manager) appliedVersionsDesc(ctx context.Context) ([]int64, error) {
	return m.queryVersions(ctx, m.dialect.selectDesc)
}

func (m *Manager) queryVersions(ctx context.Context, query string) ([]int64, error) {
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

func (m *Manager) migrationByVersion(version int64) (Migration, bool) {
	for _, migration := range m.migrations {
		if migration.Version == version {
			return migration, true
		}
	}
	return Migration{}, false
}

func loadMigrations(files fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("read migration files: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationNamePattern.FindStringSubmatch(entry.Name())
		if len(matches) != 4 {
			continue
		}

		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version %q: %w", matches[1], err)
		}

		payload, err := fs.ReadFile(files, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration file %q: %w", entry.Name(), err)
		}

		item, ok := byVersion[version]
		if !ok {
			item = &Migration{Version: version, Name: matches[2]}
			byVersion[version] = item
		} else if item.Name != matches[2] {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, item.Name, matches[2])
		}

		if matches[3] == "up" {
			item.UpSQL = string(payload)
		} else {
			item.DownSQL = string(payload)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, item := range byVersion {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("missing up migration for version %d", item.Version)
		}
		migrations = append(migrations, *item)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

var _ Database = store.Adapter(nil)
