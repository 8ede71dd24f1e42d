package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/oauthcore/pkg/audit"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/secrets"
)

const (
	// DefaultExpirySkew treats a token as expired this long before its
	// recorded expiry.
	DefaultExpirySkew = 60 * time.Second
	// DefaultRefreshLead is how early a token becomes due for refresh.
	DefaultRefreshLead = 5 * time.Minute

	defaultLockTTL  = 30 * time.Second
	defaultLockWait = 10 * time.Second
	lockPollEvery   = 50 * time.Millisecond
)

// Vault encrypts provider tokens at rest and keeps them fresh. Refreshes
// of one account are serialized across goroutines (singleflight) and
// across instances (Locker plus the record version).
type Vault struct {
	cipher   *secrets.Cipher
	tokens   TokenStore
	accounts AccountStore
	registry *Registry
	locker   Locker
	group    singleflight.Group

	now      func() time.Time
	skew     time.Duration
	lead     time.Duration
	lockTTL  time.Duration
	lockWait time.Duration

	logger  *slog.Logger
	metrics *Metrics
	trail   trail
}

// VaultOption configures a Vault.
type VaultOption func(*Vault)

// WithVaultLocker shares refresh locks between instances.
func WithVaultLocker(l Locker) VaultOption {
	return func(v *Vault) {
		if l != nil {
			v.locker = l
		}
	}
}

// WithVaultClock overrides the wall clock.
func WithVaultClock(now func() time.Time) VaultOption {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// WithExpirySkew sets the clock skew tolerance.
func WithExpirySkew(d time.Duration) VaultOption {
	return func(v *Vault) { v.skew = d }
}

// WithRefreshLead sets how early tokens are refreshed.
func WithRefreshLead(d time.Duration) VaultOption {
	return func(v *Vault) { v.lead = d }
}

// WithLockWait bounds how long a refresh waits for another holder.
func WithLockWait(d time.Duration) VaultOption {
	return func(v *Vault) { v.lockWait = d }
}

// WithVaultLogger sets the logger.
func WithVaultLogger(l *slog.Logger) VaultOption {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithVaultMetrics records refresh results.
func WithVaultMetrics(m *Metrics) VaultOption {
	return func(v *Vault) { v.metrics = m }
}

// WithVaultAudit records refresh and re-authentication events.
func WithVaultAudit(a *audit.Logger) VaultOption {
	return func(v *Vault) { v.trail.audit = a }
}

// NewVault creates a token vault.
func NewVault(cipher *secrets.Cipher, store Store, registry *Registry, opts ...VaultOption) (*Vault, error) {
	if cipher == nil || store == nil || registry == nil {
		return nil, errors.New("oauth: vault needs a cipher, a store and a registry")
	}
	v := &Vault{
		cipher:   cipher,
		tokens:   store,
		accounts: store,
		registry: registry,
		locker:   NewMemoryLocker(),
		now:      time.Now,
		skew:     DefaultExpirySkew,
		lead:     DefaultRefreshLead,
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With(logger.Component("oauth.vault"))
	v.trail.logger = v.logger
	return v, nil
}

// Encrypt seals a token value for an account. The account id is bound as
// associated data so ciphertext cannot be moved between accounts.
func (v *Vault) Encrypt(accountID uuid.UUID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return v.cipher.EncryptString(plaintext, accountID[:])
}

// Decrypt opens a value sealed by Encrypt for the same account.
func (v *Vault) Decrypt(accountID uuid.UUID, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	return v.cipher.DecryptString(ciphertext, accountID[:])
}

// IsExpired reports whether the access token should no longer be used.
func (v *Vault) IsExpired(rec *TokenRecord, now time.Time) bool {
	if rec.AccessExpiresAt.IsZero() {
		return false
	}
	return !now.Before(rec.AccessExpiresAt.Add(-v.skew))
}

// NeedsRefresh reports whether the access token is within the refresh lead.
func (v *Vault) NeedsRefresh(rec *TokenRecord, now time.Time) bool {
	if rec.AccessExpiresAt.IsZero() {
		return false
	}
	return !now.Before(rec.AccessExpiresAt.Add(-v.lead))
}

// Store encrypts a token set and replaces the account's record. A fresh
// token set clears any pending re-authentication.
func (v *Vault) Store(ctx context.Context, accountID uuid.UUID, ts *TokenSet) (*TokenRecord, error) {
	if ts == nil || ts.AccessToken == "" {
		return nil, errors.New("oauth: token set without access token")
	}
	rec, err := v.seal(accountID, ts, "")
	if err != nil {
		return nil, err
	}
	if err := v.tokens.SaveToken(ctx, rec, AnyVersion); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	if err := v.accounts.SetReauthRequired(ctx, accountID, false); err != nil {
		return nil, fmt.Errorf("failed to clear reauth flag: %w", err)
	}
	return rec, nil
}

// seal builds an encrypted record. keepRefresh is reused when the token
// set carries no new refresh token.
func (v *Vault) seal(accountID uuid.UUID, ts *TokenSet, keepRefresh string) (*TokenRecord, error) {
	access, err := v.Encrypt(accountID, ts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh := keepRefresh
	if ts.RefreshToken != "" {
		if refresh, err = v.Encrypt(accountID, ts.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	return &TokenRecord{
		AccountID:        accountID,
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        ts.TokenType,
		Scope:            ts.Scope,
		AccessExpiresAt:  ts.ExpiresAt,
		RefreshExpiresAt: ts.RefreshExpiresAt,
		UpdatedAt:        v.now().UTC(),
	}, nil
}

// AccessToken returns a usable plaintext access token, refreshing first
// when it is due.
func (v *Vault) AccessToken(ctx context.Context, accountID uuid.UUID) (string, error) {
	acc, err := v.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acc.ReauthRequired {
		return "", ErrReauthRequired
	}
	rec, err := v.tokens.GetToken(ctx, accountID)
	if err != nil {
		return "", err
	}

	now := v.now()
	if v.NeedsRefresh(rec, now) {
		if !rec.HasRefreshToken() {
			if v.IsExpired(rec, now) {
				v.markReauth(ctx, acc, ErrRefreshUnsupported)
				return "", ErrReauthRequired
			}
		} else {
			fresh, err := v.refresh(ctx, accountID, true)
			switch {
			case err == nil:
				rec = fresh
			case errors.Is(err, ErrReauthRequired) || v.IsExpired(rec, now):
				return "", err
			default:
				v.logger.WarnContext(ctx, "refresh failed, using current token",
					logger.AccountID(accountID), logger.Error(err))
			}
		}
	}

	token, err := v.Decrypt(accountID, rec.AccessToken)
	if err != nil {
		v.markReauth(ctx, acc, err)
		return "", fmt.Errorf("%w: %w", ErrReauthRequired, err)
	}
	return token, nil
}

// Refresh exchanges the stored refresh token for a new token set right away.
func (v *Vault) Refresh(ctx context.Context, accountID uuid.UUID) (*TokenRecord, error) {
	return v.refresh(ctx, accountID, false)
}

// RefreshIfDue refreshes only when the token is within the refresh lead.
func (v *Vault) RefreshIfDue(ctx context.Context, accountID uuid.UUID) (*TokenRecord, error) {
	return v.refresh(ctx, accountID, true)
}

func (v *Vault) refresh(ctx context.Context, accountID uuid.UUID, onlyIfDue bool) (*TokenRecord, error) {
	res, err, _ := v.group.Do(accountID.String(), func() (any, error) {
		return v.doRefresh(ctx, accountID, onlyIfDue)
	})
	if err != nil {
		return nil, err
	}
	return res.(*TokenRecord), nil
}

func (v *Vault) doRefresh(ctx context.Context, accountID uuid.UUID, onlyIfDue bool) (*TokenRecord, error) {
	observed, err := v.tokens.GetToken(ctx, accountID)
	if err != nil {
		return nil, err
	}
	acc, err := v.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.ReauthRequired {
		return nil, ErrReauthRequired
	}
	provider, ok := v.registry.Lookup(acc.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, acc.Provider)
	}

	release, err := v.acquire(ctx, "token-refresh:"+accountID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire refresh lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			v.logger.WarnContext(ctx, "failed to release refresh lock", logger.AccountID(accountID), logger.Error(err))
		}
	}()

	// Another holder may have refreshed while we waited.
	current, err := v.tokens.GetToken(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if current.Version != observed.Version || (onlyIfDue && !v.NeedsRefresh(current, v.now())) {
		v.metrics.refresh(acc.Provider, "skipped")
		return current, nil
	}
	if !current.HasRefreshToken() {
		return nil, ErrRefreshUnsupported
	}

	refreshToken, err := v.Decrypt(accountID, current.RefreshToken)
	if err != nil {
		v.markReauth(ctx, acc, err)
		return nil, fmt.Errorf("%w: %w", ErrReauthRequired, err)
	}

	started := time.Now()
	ts, err := provider.RefreshToken(ctx, refreshToken)
	v.metrics.observe(acc.Provider, "refresh", started)
	switch {
	case errors.Is(err, ErrInvalidGrant):
		v.markReauth(ctx, acc, err)
		return nil, fmt.Errorf("%w: %w", ErrReauthRequired, err)
	case err != nil:
		v.metrics.refresh(acc.Provider, "error")
		return nil, err
	}

	next, err := v.seal(accountID, ts, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	next.ID = current.ID
	if err := v.tokens.SaveToken(ctx, next, current.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			v.metrics.refresh(acc.Provider, "conflict")
			return v.tokens.GetToken(ctx, accountID)
		}
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	v.metrics.refresh(acc.Provider, "success")
	v.trail.success(ctx, ActionTokenRefreshed,
		audit.WithUserID(acc.UserID.String()),
		audit.WithResource("oauth_account", accountID.String()),
		audit.WithMetadata("provider", acc.Provider),
	)
	v.logger.DebugContext(ctx, "token refreshed",
		logger.AccountID(accountID), logger.Provider(acc.Provider))
	return next, nil
}

func (v *Vault) acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	var release func(context.Context) error
	backoff := retry.WithMaxDuration(v.lockWait, retry.NewConstant(lockPollEvery))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := v.locker.Acquire(ctx, key, v.lockTTL)
		if errors.Is(err, ErrLockNotAcquired) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		release = r
		return nil
	})
	return release, err
}

func (v *Vault) markReauth(ctx context.Context, acc *Account, cause error) {
	v.metrics.refresh(acc.Provider, "reauth_required")
	if err := v.accounts.SetReauthRequired(ctx, acc.ID, true); err != nil {
		v.logger.ErrorContext(ctx, "failed to flag account for re-authentication",
			logger.AccountID(acc.ID), logger.Error(err))
	}
	v.logger.WarnContext(ctx, "account requires re-authentication",
		logger.AccountID(acc.ID), logger.Provider(acc.Provider), logger.Reason(ReasonOf(cause)))
	v.trail.failure(ctx, ActionReauthRequired, cause,
		audit.WithUserID(acc.UserID.String()),
		audit.WithResource("oauth_account", acc.ID.String()),
		audit.WithMetadata("provider", acc.Provider),
	)
}
