package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/oauthcore/pkg/config"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/pg"
	"github.com/dmitrymomot/oauthcore/svc/oauth/pgstore"
)

type migrateFunc func(context.Context, *pgxpool.Pool, pg.Config, pg.Migrations, *slog.Logger) error

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	sub := func(use, short string, run migrateFunc) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd.Context(), opts, run)
			},
		}
	}
	cmd.AddCommand(
		sub("up", "Apply all pending migrations", pg.Migrate),
		sub("down", "Revert the latest migration", pg.Rollback),
		sub("status", "Show applied migrations", pg.Status),
	)
	return cmd
}

func runMigrate(ctx context.Context, opts *rootOptions, run migrateFunc) error {
	var logCfg struct {
		Env string `env:"APP_ENV" envDefault:"development"`
	}
	if err := config.Load(&logCfg, loadOptions(opts, nil)...); err != nil {
		return err
	}
	log := newLogger(appConfig{Env: logCfg.Env})

	pgCfg, err := loadPGConfig(opts)
	if err != nil {
		return err
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := run(ctx, pool, pgCfg, pgstore.Migrations, log); err != nil {
		log.ErrorContext(ctx, "migration failed", logger.Error(err))
		return err
	}
	return nil
}
