package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrations describes an embedded goose migration set.
type Migrations struct {
	FS  fs.FS
	Dir string
}

// Migrate applies all pending migrations from m.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, m Migrations, log *slog.Logger) error {
	return runGoose(ctx, pool, cfg, m, log, func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	})
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, pool *pgxpool.Pool, cfg Config, m Migrations, log *slog.Logger) error {
	return runGoose(ctx, pool, cfg, m, log, func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	})
}

// Status logs the applied state of every migration.
func Status(ctx context.Context, pool *pgxpool.Pool, cfg Config, m Migrations, log *slog.Logger) error {
	return runGoose(ctx, pool, cfg, m, log, func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.StatusContext(ctx, db, dir)
	})
}

func runGoose(ctx context.Context, pool *pgxpool.Pool, cfg Config, m Migrations, log *slog.Logger, run func(context.Context, *sql.DB, string) error) error {
	if m.FS == nil || m.Dir == "" {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationsNotProvided)
	}
	if _, err := fs.Stat(m.FS, m.Dir); err != nil {
		return errors.Join(ErrMigrationsDirNotFound, err)
	}

	// goose works on database/sql; share the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", "error", err)
		}
	}()

	goose.SetBaseFS(m.FS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{log: log})
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := run(ctx, db, m.Dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// gooseLogger routes goose's printf output through slog.
type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...), "component", "migrations")
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...), "component", "migrations")
}
