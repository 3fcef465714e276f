package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/txscope/pkg/config"
	"github.com/nimburion/txscope/pkg/observability/logger"
	"github.com/nimburion/txscope/pkg/store/mysql"
	"github.com/nimburion/txscope/pkg/store/postgres"
)

var (
	_ Adapter = (*postgres.PostgreSQLAdapter)(nil)
	_ Adapter = (*mysql.MySQLAdapter)(nil)
)

// NewStorageAdapter selects and initializes the SQL adapter named by
// cfg.Type. There is no fallback between providers.
func NewStorageAdapter(cfg config.DatabaseConfig, log logger.Logger) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypePostgres:
		adapter, err := postgres.NewPostgreSQLAdapter(postgres.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	case config.DatabaseTypeMySQL:
		adapter, err := mysql.NewMySQLAdapter(mysql.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: postgres, mysql)", cfg.Type)
	}
}
