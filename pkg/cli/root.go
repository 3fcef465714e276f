// Package cli implements the txscope command line.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/txscope/pkg/config"
	"github.com/nimburion/txscope/pkg/health"
	"github.com/nimburion/txscope/pkg/observability/logger"
	"github.com/nimburion/txscope/pkg/store"
	"github.com/nimburion/txscope/pkg/version"
)

// AdapterFactory builds the storage adapter used by exec and healthcheck.
type AdapterFactory func(cfg config.DatabaseConfig, log logger.Logger) (store.Adapter, error)

// Options configures the root command.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Optional: overrides store.NewStorageAdapter (useful for tests).
	NewAdapter AdapterFactory
}

type environment struct {
	opts                Options
	cfgPath             string
	serviceNameOverride string
}

// NewRootCommand creates the txscope CLI.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "txscope"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}
	if opts.NewAdapter == nil {
		opts.NewAdapter = store.NewStorageAdapter
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	env := &environment{opts: opts}
	rootCmd.PersistentFlags().StringVarP(&env.cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&env.serviceNameOverride, "service-name", "", "service name override")

	rootCmd.AddCommand(
		newVersionCommand(opts.Name),
		newExecCommand(env),
		newHealthcheckCommand(env),
		newConfigCommand(env),
		newMigrateCommand(env),
	)

	return rootCmd
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
		},
	}
}

func newHealthcheckCommand(env *environment) *cobra.Command {
	var (
		skipTransaction bool
		timeout         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the configured database and its transaction round trip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := env.loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}
			if err := config.RequireDatabaseURL(cfg); err != nil {
				return err
			}

			adapter, err := env.opts.NewAdapter(cfg.Database, log)
			if err != nil {
				return err
			}
			defer adapter.Close()

			registry := health.NewRegistry()
			registry.Register(health.NewAdapterChecker("database", adapter, timeout))
			if !skipTransaction {
				registry.Register(health.NewTransactionChecker("transaction", adapter, timeout))
			}

			result := registry.Check(cmd.Context())
			out := cmd.OutOrStdout()
			for _, check := range result.Checks {
				if check.Error != "" {
					fmt.Fprintf(out, "%s: %s (%s)\n", check.Name, check.Status, check.Error)
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", check.Name, check.Status)
			}
			if !result.IsHealthy() {
				return fmt.Errorf("%s is %s", cfg.Database.Type, result.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipTransaction, "skip-transaction", false, "only ping, do not run an empty transaction")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-check timeout")

	return cmd
}

func (e *environment) loadConfig() (*config.Config, error) {
	cfg, err := config.NewViperLoader(e.cfgPath, e.opts.EnvPrefix).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Name = resolveServiceNameValue(cfg.Service.Name, e.opts.Name, e.serviceNameOverride)
	return cfg, nil
}

func (e *environment) loadConfigAndLogger(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	level, err := logger.ParseLogLevel(cfg.Observability.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, log.With("service", cfg.Service.Name), nil
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveServiceNameValue(currentConfigName, defaultServiceName, serviceNameOverride string) string {
	if override := strings.TrimSpace(serviceNameOverride); override != "" {
		return override
	}
	if configured := strings.TrimSpace(currentConfigName); configured != "" {
		return configured
	}
	if fallback := strings.TrimSpace(defaultServiceName); fallback != "" {
		return fallback
	}
	return "txscope"
}
