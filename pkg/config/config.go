package config

import "time"

// Database type constants
const (
	// DatabaseTypePostgres represents PostgreSQL database
	DatabaseTypePostgres = "postgres"
	// DatabaseTypeMySQL represents MySQL database
	DatabaseTypeMySQL = "mysql"
)

// Config is the root configuration structure for txscope.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
	Transaction   TransactionConfig   `mapstructure:"transaction" yaml:"transaction"`
}

// ServiceConfig identifies the running process in logs, metrics and traces.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DatabaseConfig configures the SQL connection pool.
type DatabaseConfig struct {
	Type            string        `mapstructure:"type" yaml:"type"` // postgres, mysql
	URL             string        `mapstructure:"url" yaml:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// ObservabilityConfig configures logging, tracing and metrics.
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"` // json, text
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	MetricsEnabled    bool    `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// TransactionConfig configures scoped executions.
type TransactionConfig struct {
	// Timeout bounds a whole scoped execution. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// LogSuppressedErrors reports rollback and autocommit-restore failures
	// through the logger. They never change the outcome.
	LogSuppressedErrors bool `mapstructure:"log_suppressed_errors" yaml:"log_suppressed_errors"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "txscope",
			Environment: "production",
		},
		Database: DatabaseConfig{
			Type:            DatabaseTypePostgres,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 2 * time.Minute,
			QueryTimeout:    10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingEnabled:    false,
			TracingSampleRate: 0.1,
			TracingEndpoint:   "localhost:4317",
			MetricsEnabled:    false,
		},
		Transaction: TransactionConfig{
			Timeout:             30 * time.Second,
			LogSuppressedErrors: true,
		},
	}
}
