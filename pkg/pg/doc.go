// Package pg bootstraps PostgreSQL access with pgx/v5.
//
// Connect opens a *pgxpool.Pool from an env-tagged Config and retries with
// exponential backoff (github.com/sethvargo/go-retry) while the server is
// unavailable. Migrate, Rollback and Status run goose migrations embedded in
// the binary against the same pool. Healthcheck returns a probe suitable for
// readiness endpoints, and the Is*Error helpers classify driver errors.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pg.Migrations{FS: migrations.FS, Dir: "."}, log); err != nil {
//		return err
//	}
package pg
