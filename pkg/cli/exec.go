package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/txscope/pkg/config"
	"github.com/nimburion/txscope/pkg/resilience"
)

var errNoStatements = errors.New("no statements given")

type execOptions struct {
	file         string
	timeout      time.Duration
	printMetrics bool
}

func newExecCommand(env *environment) *cobra.Command {
	var opts execOptions

	cmd := &cobra.Command{
		Use:   "exec [statement...]",
		Short: "Run SQL statements in a single transaction",
		Long: `Run SQL statements in a single transaction.

All statements commit together or none do. The first failing statement
rolls the transaction back and its error is reported. The connection is
returned to the pool in autocommit mode either way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			statements, err := collectStatements(args, opts.file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runExec(cmd, env, statements, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read statements from file (- for stdin)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "transaction timeout (default from transaction.timeout)")
	cmd.Flags().BoolVar(&opts.printMetrics, "print-metrics", false, "print transaction metrics after the run")

	return cmd
}

func runExec(cmd *cobra.Command, env *environment, statements []string, opts execOptions) error {
	cfg, log, err := env.loadConfigAndLogger(cmd)
	if err != nil {
		return err
	}
	if err := config.RequireDatabaseURL(cfg); err != nil {
		return err
	}
	if !cmd.Flags().Changed("timeout") {
		opts.timeout = cfg.Transaction.Timeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scope, err := env.openScope(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer scope.close()
	adapter := scope.adapter

	affected := make([]int64, 0, len(statements))
	err = resilience.WithTimeout(ctx, opts.timeout, func(ctx context.Context) error {
		return adapter.WithTransaction(ctx, func(txCtx context.Context) error {
			for i, stmt := range statements {
				res, err := adapter.ExecContext(txCtx, stmt)
				if err != nil {
					return fmt.Errorf("statement %d: %w", i+1, err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					n = -1
				}
				affected = append(affected, n)
			}
			return nil
		})
	})

	out := cmd.OutOrStdout()
	if err == nil {
		for i, n := range affected {
			fmt.Fprintf(out, "statement %d: %d rows affected\n", i+1, n)
		}
		fmt.Fprintf(out, "committed %d statement(s)\n", len(statements))
	} else {
		log.Error("transaction failed", "error", err, "statements", len(statements))
	}

	if opts.printMetrics || cfg.Observability.MetricsEnabled {
		if werr := writeMetrics(out, scope.registry.Gatherer()); werr != nil {
			log.Warn("failed to print metrics", "error", werr)
		}
	}
	return err
}

// collectStatements reads statements from file (if set) followed by the
// positional arguments. Each argument is a single statement.
func collectStatements(args []string, file string, stdin io.Reader) ([]string, error) {
	var statements []string

	if file != "" {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("read statements: %w", err)
		}
		statements = append(statements, splitStatements(string(data))...)
	}

	for _, arg := range args {
		if stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(arg), ";")); stmt != "" {
			statements = append(statements, stmt)
		}
	}

	if len(statements) == 0 {
		return nil, errNoStatements
	}
	return statements, nil
}

// splitStatements splits a script on ';'. Whole-line "--" comments are
// dropped; semicolons inside string literals are not handled.
func splitStatements(script string) []string {
	var kept []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}

	var statements []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
