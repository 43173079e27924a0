// Command migrate applies and authors the goose migrations behind the
// console's SQL state backend.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/db"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/migrate"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

type options struct {
	dir string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the client_state schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.dir, "dir", "",
		"migrations directory (empty uses the embedded set; create defaults to "+migrate.DefaultDir+")")

	for _, command := range []string{"up", "down", "status"} {
		root.AddCommand(gooseCmd(opts, command))
	}
	root.AddCommand(toVersionCmd(opts), createCmd(opts), validateCmd(opts))
	return root
}

func gooseCmd(opts *options, command string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: "Run goose " + command,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), command, func(ctx context.Context, sqlDB *sql.DB, dialect string) error {
				return migrate.Run(ctx, sqlDB, dialect, opts.dir, command)
			})
		},
	}
}

func toVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to a YYYYMMDDHHMMSS version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), "to", func(ctx context.Context, sqlDB *sql.DB, dialect string) error {
				return migrate.MigrateToVersion(ctx, sqlDB, dialect, opts.dir, args[0])
			})
		},
	}
}

func createCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Write an empty timestamped migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.dir
			if dir == "" {
				dir = migrate.DefaultDir
			}
			path, err := migrate.CreateSQLMigration(dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created", path)
			return nil
		},
	}
}

func validateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check migration names and goose markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if opts.dir == "" {
				err = migrate.ValidateFS(migrate.Embedded())
			} else {
				err = migrate.ValidateDir(opts.dir)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations ok")
			return nil
		},
	}
}

// withDB opens the configured database for the duration of fn.
func withDB(ctx context.Context, command string, fn func(context.Context, *sql.DB, string) error) (err error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.Log.Level),
		WarnStack:   cfg.Log.WarnStack,
		Output:      os.Stderr,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"cmd":       command,
		"db_driver": cfg.DB.NormalizedDriver(),
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { err = multierr.Append(err, client.Close()) }()

	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}
	if err := fn(ctx, sqlDB, client.Dialect()); err != nil {
		logg.Error(ctx, "migration failed", err)
		return err
	}
	logg.Info(ctx, "migration finished")
	return nil
}
