package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/oauthcore/pkg/audit"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/ratelimit"
)

// Rate limit scopes.
const (
	ScopeInitiate = "initiate"
	ScopeCallback = "callback"
	ScopeLink     = "link"
)

// Limits throttles the flow entry points. Requests over a limit fail with
// a *RateLimitError carrying the wait time.
type Limits struct {
	initiate ratelimit.Limiter
	callback ratelimit.Limiter
	link     ratelimit.Limiter

	logger  *slog.Logger
	metrics *Metrics
	trail   trail
}

type limitsConfig struct {
	initiate, callback, link rate
	clock                    ratelimit.Clock
	logger                   *slog.Logger
	metrics                  *Metrics
	audit                    *audit.Logger
}

type rate struct {
	n      int
	window time.Duration
}

// LimitsOption configures Limits.
type LimitsOption func(*limitsConfig)

// WithInitiateLimit sets the per-IP limit on starting flows.
func WithInitiateLimit(n int, window time.Duration) LimitsOption {
	return func(c *limitsConfig) { c.initiate = rate{n, window} }
}

// WithCallbackLimit sets the per-session limit on callbacks.
func WithCallbackLimit(n int, window time.Duration) LimitsOption {
	return func(c *limitsConfig) { c.callback = rate{n, window} }
}

// WithLinkLimit sets the per-user limit on link and unlink.
func WithLinkLimit(n int, window time.Duration) LimitsOption {
	return func(c *limitsConfig) { c.link = rate{n, window} }
}

// WithLimitsClock sets the limiter clock.
func WithLimitsClock(clock ratelimit.Clock) LimitsOption {
	return func(c *limitsConfig) { c.clock = clock }
}

// WithLimitsLogger sets the logger.
func WithLimitsLogger(l *slog.Logger) LimitsOption {
	return func(c *limitsConfig) { c.logger = l }
}

// WithLimitsMetrics counts throttled requests.
func WithLimitsMetrics(m *Metrics) LimitsOption {
	return func(c *limitsConfig) { c.metrics = m }
}

// WithLimitsAudit records throttled requests.
func WithLimitsAudit(a *audit.Logger) LimitsOption {
	return func(c *limitsConfig) { c.audit = a }
}

// NewLimits creates the flow limiters over a shared store. Defaults are 10
// initiations per minute per IP, 20 callbacks per minute per session and 5
// link or unlink operations per minute per user.
func NewLimits(store ratelimit.SlidingWindowStore, opts ...LimitsOption) (*Limits, error) {
	cfg := limitsConfig{
		initiate: rate{10, time.Minute},
		callback: rate{20, time.Minute},
		link:     rate{5, time.Minute},
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var lopts []ratelimit.Option
	if cfg.clock != nil {
		lopts = append(lopts, ratelimit.WithClock(cfg.clock))
	}
	build := func(r rate) (ratelimit.Limiter, error) {
		return ratelimit.NewSlidingWindow(store, r.n, r.window, lopts...)
	}

	l := &Limits{
		logger:  cfg.logger.With(logger.Component("oauth.limits")),
		metrics: cfg.metrics,
	}
	l.trail = trail{audit: cfg.audit, logger: l.logger}

	var err error
	if l.initiate, err = build(cfg.initiate); err != nil {
		return nil, fmt.Errorf("initiate limiter: %w", err)
	}
	if l.callback, err = build(cfg.callback); err != nil {
		return nil, fmt.Errorf("callback limiter: %w", err)
	}
	if l.link, err = build(cfg.link); err != nil {
		return nil, fmt.Errorf("link limiter: %w", err)
	}
	return l, nil
}

// Initiate counts a flow start from ip.
func (l *Limits) Initiate(ctx context.Context, ip string) error {
	if l == nil {
		return nil
	}
	return l.check(ctx, l.initiate, ScopeInitiate, "ip", ip)
}

// Callback counts a callback for a client session.
func (l *Limits) Callback(ctx context.Context, session string) error {
	if l == nil {
		return nil
	}
	return l.check(ctx, l.callback, ScopeCallback, "session", session)
}

// Link counts a link or unlink by user.
func (l *Limits) Link(ctx context.Context, userID string) error {
	if l == nil {
		return nil
	}
	return l.check(ctx, l.link, ScopeLink, "user", userID)
}

func (l *Limits) check(ctx context.Context, limiter ratelimit.Limiter, scope, kind, subject string) error {
	if subject == "" {
		subject = "unknown"
	}
	res, err := limiter.Allow(ctx, ratelimit.Key("oauth", scope, kind, subject))
	if err != nil {
		// Fail open while the limiter backend is down.
		if !errors.Is(err, context.Canceled) {
			l.logger.ErrorContext(ctx, "rate limiter unavailable", logger.Event(scope), logger.Error(err))
		}
		return nil
	}
	if res.Allowed {
		return nil
	}

	rl := &RateLimitError{Scope: scope, RetryAfter: res.RetryAfter()}
	l.metrics.throttle(scope)
	l.logger.WarnContext(ctx, "request throttled", logger.Event(scope), logger.Duration(rl.RetryAfter))
	l.trail.failure(ctx, ActionRateLimited, nil,
		audit.WithMetadata("scope", scope),
		audit.WithMetadata(kind, subject),
		audit.WithMetadata("retry_after_seconds", int(rl.RetryAfter.Seconds())),
	)
	return rl
}
