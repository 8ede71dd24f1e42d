package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauthcore/pkg/logger"
)

// Identity is what resolution works from: the provider's view of the user
// plus the explicit link target when the flow was started by a signed-in
// user.
type Identity struct {
	Provider   string
	Info       UserInfo
	LinkUserID *uuid.UUID
}

// Resolution is the result of mapping an identity to an internal user.
type Resolution struct {
	UserID  uuid.UUID
	Account *Account
	Outcome Outcome
}

// Resolver maps external identities to internal users.
type Resolver struct {
	accounts      AccountStore
	users         UserDirectory
	requireStepUp bool
	now           func() time.Time
	logger        *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStepUp refuses to auto-link into accounts that have no password,
// since nobody could have proven control of them.
func WithStepUp(required bool) ResolverOption {
	return func(r *Resolver) { r.requireStepUp = required }
}

// WithResolverClock overrides the wall clock.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates an identity resolver.
func NewResolver(accounts AccountStore, users UserDirectory, opts ...ResolverOption) (*Resolver, error) {
	if accounts == nil || users == nil {
		return nil, errors.New("oauth: resolver needs an account store and a user directory")
	}
	r := &Resolver{
		accounts:      accounts,
		users:         users,
		requireStepUp: true,
		now:           time.Now,
		logger:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("oauth.resolver"))
	return r, nil
}

// Resolve applies, in order:
//
//	a. an explicit link request attaches the identity to that user;
//	b. a known (provider, subject) signs its owner in;
//	c. a verified email matching an existing user links to that user;
//	d. otherwise a new user is created.
//
// An unverified email matching an existing user is never linked.
// Resolve is idempotent: replaying it after a crash converges on the same
// account.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (*Resolution, error) {
	if id.Provider == "" || id.Info.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: identity without subject", ErrUserInfoFailed)
	}
	log := r.logger.With(logger.Provider(id.Provider))

	existing, err := r.accounts.GetAccountByProviderUserID(ctx, id.Provider, id.Info.ProviderUserID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if id.LinkUserID != nil {
		if existing != nil {
			if existing.UserID != *id.LinkUserID {
				log.WarnContext(ctx, "identity already linked to another user", logger.UserID(*id.LinkUserID))
				return nil, ErrAlreadyLinkedToAnotherUser
			}
			if err := r.touch(ctx, existing, id.Info); err != nil {
				return nil, err
			}
			return &Resolution{UserID: existing.UserID, Account: existing, Outcome: OutcomeAlreadyLinked}, nil
		}
		acc, err := r.link(ctx, *id.LinkUserID, id)
		if err != nil {
			return nil, err
		}
		return &Resolution{UserID: acc.UserID, Account: acc, Outcome: OutcomeLinked}, nil
	}

	if existing != nil {
		if err := r.touch(ctx, existing, id.Info); err != nil {
			return nil, err
		}
		return &Resolution{UserID: existing.UserID, Account: existing, Outcome: OutcomeSignedIn}, nil
	}

	email := normalizeEmail(id.Info.Email)
	if email == "" {
		return nil, ErrNoEmailAvailable
	}

	user, err := r.users.LookupUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !id.Info.EmailVerified {
			log.InfoContext(ctx, "unverified email matches existing user", logger.UserID(user.ID))
			return nil, ErrAmbiguousIdentity
		}
		if r.requireStepUp && !user.HasPassword {
			log.InfoContext(ctx, "auto-link needs confirmation", logger.UserID(user.ID))
			return nil, ErrAmbiguousIdentity
		}
		acc, err := r.link(ctx, user.ID, id)
		if err != nil {
			return nil, err
		}
		return &Resolution{UserID: user.ID, Account: acc, Outcome: OutcomeAutoLinked}, nil

	case errors.Is(err, ErrUserNotFound):
		userID, err := r.users.FindOrCreateUser(ctx, email, UserProfile{
			Email:         email,
			EmailVerified: id.Info.EmailVerified,
			DisplayName:   id.Info.DisplayName,
			Provider:      id.Provider,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		acc, err := r.link(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		return &Resolution{UserID: userID, Account: acc, Outcome: OutcomeSignedUp}, nil

	default:
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
}

// link creates the account row. A unique violation means a concurrent or
// earlier attempt won; that row is returned when it belongs to the same
// user.
func (r *Resolver) link(ctx context.Context, userID uuid.UUID, id Identity) (*Account, error) {
	now := r.now().UTC()
	acc := &Account{
		ID:             uuid.New(),
		UserID:         userID,
		Provider:       id.Provider,
		ProviderUserID: id.Info.ProviderUserID,
		Email:          normalizeEmail(id.Info.Email),
		EmailVerified:  id.Info.EmailVerified,
		Profile:        id.Info.RawProfile,
		CreatedAt:      now,
		LastUsedAt:     now,
	}
	err := r.accounts.CreateAccount(ctx, acc)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrAccountExists) {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	winner, err := r.accounts.GetAccountByProviderUserID(ctx, id.Provider, id.Info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload account: %w", err)
	}
	if winner.UserID != userID {
		return nil, ErrAlreadyLinkedToAnotherUser
	}
	return winner, nil
}

func (r *Resolver) touch(ctx context.Context, acc *Account, info UserInfo) error {
	now := r.now().UTC()
	email := normalizeEmail(info.Email)
	if err := r.accounts.TouchAccount(ctx, acc.ID, email, info.EmailVerified, info.RawProfile, now); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	acc.Email, acc.EmailVerified, acc.Profile, acc.LastUsedAt = email, info.EmailVerified, info.RawProfile, now
	return nil
}
