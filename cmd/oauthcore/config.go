package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/oauthcore/pkg/config"
	"github.com/dmitrymomot/oauthcore/pkg/cookie"
	"github.com/dmitrymomot/oauthcore/pkg/httpserver"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/pg"
	"github.com/dmitrymomot/oauthcore/pkg/redis"
	"github.com/dmitrymomot/oauthcore/pkg/requestid"
	"github.com/dmitrymomot/oauthcore/pkg/session"
	svc "github.com/dmitrymomot/oauthcore/svc/oauth"
)

const (
	storagePostgres = "postgres"
	storageMemory   = "memory"
)

type appConfig struct {
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogFormat string `env:"LOG_FORMAT"`

	// Storage selects the account store: postgres or memory.
	Storage        string   `env:"OAUTH_STORAGE" envDefault:"postgres"`
	TrustedProxies []string `env:"HTTP_TRUSTED_PROXIES" envSeparator:","`

	InitiateLimit int           `env:"OAUTH_INITIATE_LIMIT" envDefault:"10"`
	CallbackLimit int           `env:"OAUTH_CALLBACK_LIMIT" envDefault:"20"`
	LinkLimit     int           `env:"OAUTH_LINK_LIMIT" envDefault:"5"`
	LimitWindow   time.Duration `env:"OAUTH_LIMIT_WINDOW" envDefault:"1m"`

	HTTP    httpserver.Config
	OAuth   svc.Config
	Redis   redis.Config
	Cookie  cookie.Config
	Session session.Config
}

func loadConfig(opts *rootOptions, extra ...config.Option) (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg, loadOptions(opts, extra)...); err != nil {
		return cfg, err
	}
	switch cfg.Storage {
	case storagePostgres, storageMemory:
	default:
		return cfg, fmt.Errorf("unknown OAUTH_STORAGE %q", cfg.Storage)
	}
	return cfg, nil
}

func loadPGConfig(opts *rootOptions, extra ...config.Option) (pg.Config, error) {
	var cfg pg.Config
	err := config.Load(&cfg, loadOptions(opts, extra)...)
	return cfg, err
}

func loadOptions(opts *rootOptions, extra []config.Option) []config.Option {
	var out []config.Option
	if opts != nil && len(opts.envFiles) > 0 {
		out = append(out, config.WithEnvFiles(opts.envFiles...))
	}
	return append(out, extra...)
}

func newLogger(cfg appConfig) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, "oauthcore"),
		logger.WithOutput(os.Stderr),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			logger.CorrelationExtractor(),
		),
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(logger.Format(cfg.LogFormat)))
	}
	return logger.New(opts...)
}
