package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	oauthmodule "github.com/dmitrymomot/oauthcore/modules/oauth"
	"github.com/dmitrymomot/oauthcore/pkg/audit"
	"github.com/dmitrymomot/oauthcore/pkg/clientip"
	"github.com/dmitrymomot/oauthcore/pkg/cookie"
	"github.com/dmitrymomot/oauthcore/pkg/httpserver"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/pg"
	"github.com/dmitrymomot/oauthcore/pkg/ratelimit"
	"github.com/dmitrymomot/oauthcore/pkg/redis"
	"github.com/dmitrymomot/oauthcore/pkg/requestid"
	"github.com/dmitrymomot/oauthcore/pkg/secrets"
	"github.com/dmitrymomot/oauthcore/pkg/session"
	"github.com/dmitrymomot/oauthcore/pkg/ttlstore"
	svc "github.com/dmitrymomot/oauthcore/svc/oauth"
	"github.com/dmitrymomot/oauthcore/svc/oauth/memstore"
	"github.com/dmitrymomot/oauthcore/svc/oauth/pgstore"
)

// app is the wired process: the HTTP handler, the refresh scheduler and
// everything that must be closed on shutdown.
type app struct {
	handler   http.Handler
	scheduler *svc.RefreshScheduler
	closers   []io.Closer
	log       *slog.Logger
}

// ephemeral groups the short-lived stores. They live in Redis when it is
// configured so several instances share flows, limits and locks.
type ephemeral struct {
	requests ttlstore.Store
	sessions ttlstore.Store
	limits   ratelimit.SlidingWindowStore
	locker   svc.Locker
}

func newApp(ctx context.Context, cfg appConfig, pool *pgxpool.Pool, log *slog.Logger) (*app, error) {
	a := &app{log: log}
	var checks []httpserver.Check

	eph, err := a.ephemeralStores(ctx, cfg, &checks)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		store svc.Store
		users svc.UserDirectory
	)
	auditStorage := []audit.Storage{audit.NewSlogStorage(log.With(logger.Component("audit")))}
	switch {
	case pool != nil:
		store = pgstore.New(pool)
		users = pgstore.NewUsers(pool)
		auditStorage = append(auditStorage, pgstore.NewAuditStorage(pool))
		checks = append(checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})
	case cfg.Storage == storageMemory:
		log.WarnContext(ctx, "using in-memory account storage; data is lost on restart")
		store = memstore.New()
		users = memstore.NewUsers()
	default:
		a.Close()
		return nil, errors.New("postgres pool is required for postgres storage")
	}

	auditLog, err := audit.NewLogger(audit.MultiStorage(auditStorage...),
		audit.WithUserIDExtractor(session.AuditUserID),
		audit.WithIPExtractor(func(ctx context.Context) (string, bool) {
			ip := clientip.GetIPFromContext(ctx)
			return ip, ip != ""
		}),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := svc.NewMetrics(registry)
	if err != nil {
		a.Close()
		return nil, err
	}

	core, sessions, vault, err := buildCore(cfg, store, users, eph, auditLog, metrics, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	module, err := oauthmodule.New(core, sessions,
		oauthmodule.WithErrorURL(cfg.OAuth.ErrorURL),
		oauthmodule.WithLogger(log),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler = svc.NewRefreshScheduler(vault,
		svc.WithInterval(cfg.OAuth.RefreshInterval),
		svc.WithBatchSize(cfg.OAuth.RefreshBatch),
		svc.WithConcurrency(cfg.OAuth.RefreshConcurrency),
		svc.WithSchedulerLogger(log),
	)

	ips := clientip.New(clientip.WithTrustedProxies(cfg.TrustedProxies...))
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestid.Middleware, ips.Middleware)
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, 2*time.Second, checks...))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Mount("/auth/oauth", module.Handle())
	a.handler = r

	return a, nil
}

func (a *app) ephemeralStores(ctx context.Context, cfg appConfig, checks *[]httpserver.Check) (ephemeral, error) {
	if !cfg.Redis.Enabled() {
		a.log.InfoContext(ctx, "redis not configured; flows, limits and locks are local to this process")
		requests := ttlstore.NewMemory(ttlstore.WithTombstoneTTL(cfg.OAuth.CodeTTL))
		sessions := ttlstore.NewMemory()
		limits := ratelimit.NewMemoryStore()
		a.closers = append(a.closers, requests, sessions, limits)
		return ephemeral{
			requests: requests,
			sessions: sessions,
			limits:   limits,
			locker:   svc.NewMemoryLocker(),
		}, nil
	}

	client, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return ephemeral{}, err
	}
	a.closers = append(a.closers, client)
	*checks = append(*checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(client)})

	return newRedisStores(client, cfg)
}

func newRedisStores(client goredis.UniversalClient, cfg appConfig) (ephemeral, error) {
	prefix := cfg.Redis.KeyPrefix
	requests, err := ttlstore.NewRedis(client,
		ttlstore.WithPrefix(prefix+"flow:"),
		ttlstore.WithTombstoneTTL(cfg.OAuth.CodeTTL),
	)
	if err != nil {
		return ephemeral{}, err
	}
	sessions, err := ttlstore.NewRedis(client, ttlstore.WithPrefix(prefix+"web:"))
	if err != nil {
		return ephemeral{}, err
	}
	limits, err := ratelimit.NewRedisStore(client, ratelimit.WithKeyPrefix(prefix+"limit:"))
	if err != nil {
		return ephemeral{}, err
	}
	return ephemeral{
		requests: requests,
		sessions: sessions,
		limits:   limits,
		locker:   svc.NewRedisLocker(client, prefix+"lock:"),
	}, nil
}

func buildCore(
	cfg appConfig,
	store svc.Store,
	users svc.UserDirectory,
	eph ephemeral,
	auditLog *audit.Logger,
	metrics *svc.Metrics,
	log *slog.Logger,
) (*svc.Service, *session.Manager, *svc.Vault, error) {
	providerCfgs, err := cfg.OAuth.ProviderConfigs()
	if err != nil {
		return nil, nil, nil, err
	}
	providers, err := svc.BuildRegistry(providerCfgs)
	if err != nil {
		return nil, nil, nil, err
	}

	key, err := secrets.ParseKey(cfg.OAuth.TokenKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid OAUTH_TOKEN_KEY: %w", err)
	}
	cipher, err := secrets.NewCipher(key, secrets.WithPurpose("oauth-tokens"))
	if err != nil {
		return nil, nil, nil, err
	}

	vault, err := svc.NewVault(cipher, store, providers,
		svc.WithVaultLocker(eph.locker),
		svc.WithVaultLogger(log),
		svc.WithVaultMetrics(metrics),
		svc.WithVaultAudit(auditLog),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	resolver, err := svc.NewResolver(store, users,
		svc.WithStepUp(cfg.OAuth.RequireStepUp),
		svc.WithResolverLogger(log),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	limits, err := svc.NewLimits(eph.limits,
		svc.WithInitiateLimit(cfg.InitiateLimit, cfg.LimitWindow),
		svc.WithCallbackLimit(cfg.CallbackLimit, cfg.LimitWindow),
		svc.WithLinkLimit(cfg.LinkLimit, cfg.LimitWindow),
		svc.WithLimitsLogger(log),
		svc.WithLimitsMetrics(metrics),
		svc.WithLimitsAudit(auditLog),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	cookies, err := cookie.NewFromConfig(cfg.Cookie)
	if err != nil {
		return nil, nil, nil, err
	}
	sessionStore, err := session.NewTTLStore(eph.sessions)
	if err != nil {
		return nil, nil, nil, err
	}
	sessions, err := session.New(sessionStore, session.NewCookieTransport(cookies, cfg.Session.CookieName),
		session.WithConfig(cfg.Session),
		session.WithLogger(log),
	)
	if err != nil {
		return nil, nil, nil, err
	}

	core, err := svc.NewService(providers, eph.requests, store, vault, resolver, users,
		oauthmodule.Establisher(sessions),
		svc.WithLogger(log),
		svc.WithStateTTL(cfg.OAuth.StateTTL),
		svc.WithCodeTTL(cfg.OAuth.CodeTTL),
		svc.WithLimits(limits),
		svc.WithRedirectPolicy(svc.NewRedirectPolicy(cfg.OAuth.DefaultRedirect, cfg.OAuth.AllowedHosts...)),
		svc.WithCallbackURL(cfg.OAuth.CallbackURL),
		svc.WithMetrics(metrics),
		svc.WithAudit(auditLog),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return core, sessions, vault, nil
}

// Close releases stores in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Error("failed to close resource", logger.Error(err))
		}
	}
	a.closers = nil
}
