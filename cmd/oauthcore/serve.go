package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/oauthcore/pkg/httpserver"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/pg"
	"github.com/dmitrymomot/oauthcore/svc/oauth/pgstore"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the token refresh scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, migrate bool) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	logger.SetAsDefault(log)

	var pool *pgxpool.Pool
	if cfg.Storage == storagePostgres {
		pgCfg, err := loadPGConfig(opts)
		if err != nil {
			return err
		}
		pool, err = pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if migrate {
			if err := pg.Migrate(ctx, pool, pgCfg, pgstore.Migrations, log); err != nil {
				return err
			}
		}
	}

	a, err := newApp(ctx, cfg, pool, log)
	if err != nil {
		return err
	}
	defer a.Close()

	server := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx, a.handler)
	})
	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})

	log.InfoContext(ctx, "oauthcore started",
		"addr", cfg.HTTP.Addr,
		"storage", cfg.Storage,
		"redis", cfg.Redis.Enabled(),
	)
	return g.Wait()
}
