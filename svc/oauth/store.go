package oauth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnyVersion makes SaveToken replace a record regardless of its version.
const AnyVersion int64 = -1

// AccountStore persists linked accounts. (provider, provider_user_id) is
// unique; CreateAccount returns ErrAccountExists on conflict.
type AccountStore interface {
	CreateAccount(ctx context.Context, acc *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByProviderUserID(ctx context.Context, provider, providerUserID string) (*Account, error)
	ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]Account, error)
	// TouchAccount records a successful sign-in and refreshes the profile copy.
	TouchAccount(ctx context.Context, id uuid.UUID, email string, verified bool, profile json.RawMessage, usedAt time.Time) error
	SetReauthRequired(ctx context.Context, id uuid.UUID, required bool) error
	// DeleteAccount removes the account and its token record.
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// TokenStore keeps exactly one token record per account.
type TokenStore interface {
	GetToken(ctx context.Context, accountID uuid.UUID) (*TokenRecord, error)
	// SaveToken replaces the account's record. Unless expectedVersion is
	// AnyVersion the stored version must equal it, otherwise
	// ErrVersionConflict is returned. On success rec.Version holds the new
	// version.
	SaveToken(ctx context.Context, rec *TokenRecord, expectedVersion int64) error
	// ListTokensDueForRefresh returns refreshable records whose access token
	// expires before the given time, skipping accounts flagged for
	// re-authentication.
	ListTokensDueForRefresh(ctx context.Context, before time.Time, limit int) ([]TokenRecord, error)
}

// Store is the primary datastore used by the core.
type Store interface {
	AccountStore
	TokenStore
}
