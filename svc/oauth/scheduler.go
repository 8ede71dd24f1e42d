package oauth

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/oauthcore/pkg/logger"
)

// RefreshScheduler refreshes tokens shortly before they expire. Several
// instances may run it at once; the vault's per-account lock and version
// check make duplicate work a no-op.
type RefreshScheduler struct {
	vault       *Vault
	tokens      TokenStore
	interval    time.Duration
	batch       int
	concurrency int
	logger      *slog.Logger
}

// SchedulerOption configures a RefreshScheduler.
type SchedulerOption func(*RefreshScheduler)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *RefreshScheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize bounds how many records one pass looks at.
func WithBatchSize(n int) SchedulerOption {
	return func(s *RefreshScheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithConcurrency bounds parallel refreshes.
func WithConcurrency(n int) SchedulerOption {
	return func(s *RefreshScheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *RefreshScheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRefreshScheduler creates a scheduler over the vault's token store.
func NewRefreshScheduler(vault *Vault, opts ...SchedulerOption) *RefreshScheduler {
	s := &RefreshScheduler{
		vault:       vault,
		tokens:      vault.tokens,
		interval:    time.Minute,
		batch:       100,
		concurrency: 4,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("oauth.scheduler"))
	return s
}

// RunOnce refreshes every due token once and reports how many were
// refreshed. Individual failures are logged, not returned.
func (s *RefreshScheduler) RunOnce(ctx context.Context) (int, error) {
	before := s.vault.now().Add(s.vault.lead)
	due, err := s.tokens.ListTokensDueForRefresh(ctx, before, s.batch)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	var refreshed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, rec := range due {
		g.Go(func() error {
			next, err := s.vault.RefreshIfDue(gctx, rec.AccountID)
			switch {
			case err == nil:
				if next.Version != rec.Version {
					refreshed.Add(1)
				}
			case errors.Is(err, context.Canceled):
				return err
			case errors.Is(err, ErrReauthRequired), errors.Is(err, ErrRefreshUnsupported):
				s.logger.InfoContext(gctx, "token not refreshable", logger.AccountID(rec.AccountID), logger.Error(err))
			default:
				s.logger.WarnContext(gctx, "token refresh failed", logger.AccountID(rec.AccountID), logger.Error(err))
			}
			return nil
		})
	}
	err = g.Wait()
	return int(refreshed.Load()), err
}

// Run polls until ctx is done.
func (s *RefreshScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "refresh scheduler started", logger.Duration(s.interval))
	for {
		n, err := s.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "refresh pass failed", logger.Error(err))
		} else if n > 0 {
			s.logger.InfoContext(ctx, "tokens refreshed", slog.Int("count", n))
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "refresh scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
