package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/adapter/storage"
	"github.com/rl1809/library-circulation/internal/config"
)

func main() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the store is open.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *storage.SQLStore
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Administer the library database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "database driver: mysql, postgres, pgx or sqlite3")
	root.PersistentFlags().StringVar(&cfg.DBDSN, "dsn", "", "database DSN (default from DB_DSN or the driver default)")

	root.AddCommand(
		newMigrateCmd(a),
		newLibrarianCmd(a),
		newMemberCmd(a),
		newBookCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.DBDSN == "" {
		a.cfg.DBDSN = os.Getenv("DB_DSN")
	}
	if a.cfg.DBDSN == "" {
		a.cfg.DBDSN = config.DefaultDSN(a.cfg.DBDriver)
	}

	a.cfg.LogFormat = "console"
	log, err := a.cfg.NewLogger()
	if err != nil {
		return err
	}
	a.log = log

	store, err := storage.OpenSQLStore(ctx, a.cfg.DBDriver, a.cfg.DBDSN, storage.PoolConfig{MaxOpenConns: 2}, log)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

func (a *app) close() error {
	if a.log != nil {
		defer a.log.Sync()
	}
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}
