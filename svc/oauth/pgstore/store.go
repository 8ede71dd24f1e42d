// Package pgstore persists OAuth accounts, tokens, audit events and a
// reference user directory in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/oauthcore/pkg/pg"
	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements oauth.Store.
type Store struct {
	db DBTX
}

// New creates a store over db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

const accountColumns = `id, user_id, provider, provider_user_id, email, email_verified,
	profile, reauth_required, created_at, last_used_at`

const createAccount = `
INSERT INTO oauth_accounts (` + accountColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (s *Store) CreateAccount(ctx context.Context, acc *oauth.Account) error {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, createAccount,
		acc.ID, acc.UserID, acc.Provider, acc.ProviderUserID, acc.Email, acc.EmailVerified,
		nullJSON(acc.Profile), acc.ReauthRequired, acc.CreatedAt, acc.LastUsedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return oauth.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*oauth.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM oauth_accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByProviderUserID(ctx context.Context, provider, providerUserID string) (*oauth.Account, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM oauth_accounts WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID)
	return scanAccount(row)
}

func (s *Store) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]oauth.Account, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+accountColumns+` FROM oauth_accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []oauth.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *acc)
	}
	return out, rows.Err()
}

func (s *Store) TouchAccount(ctx context.Context, id uuid.UUID, email string, verified bool, profile json.RawMessage, usedAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE oauth_accounts
SET email = $2, email_verified = $3, profile = $4, last_used_at = $5
WHERE id = $1`, id, email, verified, nullJSON(profile), usedAt)
	return affected(tag, err, oauth.ErrAccountNotFound)
}

func (s *Store) SetReauthRequired(ctx context.Context, id uuid.UUID, required bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE oauth_accounts SET reauth_required = $2 WHERE id = $1`, id, required)
	return affected(tag, err, oauth.ErrAccountNotFound)
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM oauth_accounts WHERE id = $1`, id)
	return affected(tag, err, oauth.ErrAccountNotFound)
}

const tokenColumns = `id, account_id, access_token, refresh_token, token_type, scope,
	access_expires_at, refresh_expires_at, version, updated_at`

func (s *Store) GetToken(ctx context.Context, accountID uuid.UUID) (*oauth.TokenRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM oauth_tokens WHERE account_id = $1`, accountID)
	rec, err := scanToken(row)
	if pg.IsNotFoundError(err) {
		return nil, oauth.ErrTokenNotFound
	}
	return rec, err
}

const upsertToken = `
INSERT INTO oauth_tokens (` + tokenColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9)
ON CONFLICT (account_id) DO UPDATE SET
	access_token = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	token_type = EXCLUDED.token_type,
	scope = EXCLUDED.scope,
	access_expires_at = EXCLUDED.access_expires_at,
	refresh_expires_at = EXCLUDED.refresh_expires_at,
	version = oauth_tokens.version + 1,
	updated_at = EXCLUDED.updated_at
RETURNING id, version`

const rotateToken = `
UPDATE oauth_tokens SET
	access_token = $3,
	refresh_token = $4,
	token_type = $5,
	scope = $6,
	access_expires_at = $7,
	refresh_expires_at = $8,
	version = version + 1,
	updated_at = $9
WHERE account_id = $1 AND version = $2
RETURNING id, version`

func (s *Store) SaveToken(ctx context.Context, rec *oauth.TokenRecord, expectedVersion int64) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	var row pgx.Row
	if expectedVersion == oauth.AnyVersion {
		row = s.db.QueryRow(ctx, upsertToken,
			rec.ID, rec.AccountID, rec.AccessToken, rec.RefreshToken, rec.TokenType, rec.Scope,
			nullTime(rec.AccessExpiresAt), nullTime(rec.RefreshExpiresAt), rec.UpdatedAt)
	} else {
		row = s.db.QueryRow(ctx, rotateToken,
			rec.AccountID, expectedVersion, rec.AccessToken, rec.RefreshToken, rec.TokenType, rec.Scope,
			nullTime(rec.AccessExpiresAt), nullTime(rec.RefreshExpiresAt), rec.UpdatedAt)
	}

	err := row.Scan(&rec.ID, &rec.Version)
	switch {
	case err == nil:
		return nil
	case pg.IsNotFoundError(err):
		return oauth.ErrVersionConflict
	case pg.IsForeignKeyError(err):
		return oauth.ErrAccountNotFound
	default:
		return fmt.Errorf("save token: %w", err)
	}
}

func (s *Store) ListTokensDueForRefresh(ctx context.Context, before time.Time, limit int) ([]oauth.TokenRecord, error) {
	rows, err := s.db.Query(ctx, `
SELECT t.id, t.account_id, t.access_token, t.refresh_token, t.token_type, t.scope,
	t.access_expires_at, t.refresh_expires_at, t.version, t.updated_at
FROM oauth_tokens t
JOIN oauth_accounts a ON a.id = t.account_id
WHERE t.refresh_token <> ''
	AND t.access_expires_at IS NOT NULL
	AND t.access_expires_at < $1
	AND NOT a.reauth_required
ORDER BY t.access_expires_at
LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list due tokens: %w", err)
	}
	defer rows.Close()

	var out []oauth.TokenRecord
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*oauth.Account, error) {
	var (
		acc     oauth.Account
		profile []byte
	)
	err := row.Scan(&acc.ID, &acc.UserID, &acc.Provider, &acc.ProviderUserID, &acc.Email,
		&acc.EmailVerified, &profile, &acc.ReauthRequired, &acc.CreatedAt, &acc.LastUsedAt)
	if pg.IsNotFoundError(err) {
		return nil, oauth.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	acc.Profile = profile
	return &acc, nil
}

func scanToken(row pgx.Row) (*oauth.TokenRecord, error) {
	var (
		rec                     oauth.TokenRecord
		accessExp, refreshExp *time.Time
	)
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.AccessToken, &rec.RefreshToken, &rec.TokenType,
		&rec.Scope, &accessExp, &refreshExp, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	if accessExp != nil {
		rec.AccessExpiresAt = *accessExp
	}
	if refreshExp != nil {
		rec.RefreshExpiresAt = *refreshExp
	}
	return &rec, nil
}

func affected(tag pgconn.CommandTag, err error, notFound error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullJSON(b json.RawMessage) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ oauth.Store = (*Store)(nil)
