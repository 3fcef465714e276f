package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/txscope/pkg/config"
	"github.com/nimburion/txscope/pkg/migrate"
	"github.com/nimburion/txscope/pkg/resilience"
)

const defaultMigrationTimeout = 60 * time.Second

func newMigrateCommand(env *environment) *cobra.Command {
	var (
		path    string
		timeout time.Duration
	)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert SQL migrations, one transaction per migration",
		Long: `Apply or revert SQL migrations found in --path.

Files are named <version>_<name>.up.sql and <version>_<name>.down.sql.
Each migration and its schema_migrations record commit together.`,
	}
	migrateCmd.PersistentFlags().StringVar(&path, "path", "migrations", "migration directory")
	migrateCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "overall timeout")

	run := func(cmd *cobra.Command, fn func(ctx context.Context, m *migrate.Manager) error) error {
		cfg, log, err := env.loadConfigAndLogger(cmd)
		if err != nil {
			return err
		}
		if err := config.RequireDatabaseURL(cfg); err != nil {
			return err
		}
		dialect, err := migrate.DialectFor(cfg.Database.Type)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scope, err := env.openScope(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer scope.close()

		manager, err := migrate.NewManager(scope.adapter, dialect, os.DirFS(path), ".", log)
		if err != nil {
			return err
		}
		return resilience.WithTimeout(ctx, timeout, func(ctx context.Context) error {
			return fn(ctx, manager)
		})
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *migrate.Manager) error {
				applied, err := m.Up(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
				return err
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Revert the newest migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid down steps %q", args[0])
				}
				steps = parsed
			}
			return run(cmd, func(ctx context.Context, m *migrate.Manager) error {
				reverted, err := m.Down(ctx, steps)
				fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", reverted)
				return err
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, m *migrate.Manager) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, version := range status.AppliedVersions {
					fmt.Fprintf(out, "applied  %d\n", version)
				}
				for _, pending := range status.Pending {
					fmt.Fprintf(out, "pending  %d_%s\n", pending.Version, pending.Name)
				}
				return nil
			})
		},
	})

	return migrateCmd
}
