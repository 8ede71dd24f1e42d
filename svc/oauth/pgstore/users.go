package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauthcore/pkg/pg"
	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

// Users is a reference oauth.UserDirectory over the users table. Hosts
// with their own user model implement the interface themselves.
type Users struct {
	db DBTX
}

// NewUsers creates a directory over db.
func NewUsers(db DBTX) *Users {
	return &Users{db: db}
}

// FindOrCreateUser inserts the user or returns the existing one. The
// insert is race free: a concurrent creator makes it a no-op.
func (u *Users) FindOrCreateUser(ctx context.Context, email string, profile oauth.UserProfile) (uuid.UUID, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var id uuid.UUID
	err := u.db.QueryRow(ctx, `
INSERT INTO users (id, email, display_name, email_verified, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
RETURNING id`, uuid.New(), email, profile.DisplayName, profile.EmailVerified, time.Now().UTC()).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert user: %w", err)
	}
	return id, nil
}

func (u *Users) LookupUserByEmail(ctx context.Context, email string) (*oauth.DirectoryUser, error) {
	var user oauth.DirectoryUser
	err := u.db.QueryRow(ctx,
		`SELECT id, password_hash IS NOT NULL AND password_hash <> '' FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&user.ID, &user.HasPassword)
	if pg.IsNotFoundError(err) {
		return nil, oauth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}

func (u *Users) CanRemoveAuthMethod(ctx context.Context, userID uuid.UUID, remainingLinked int) (bool, error) {
	if remainingLinked > 0 {
		return true, nil
	}
	var hasPassword bool
	err := u.db.QueryRow(ctx,
		`SELECT password_hash IS NOT NULL AND password_hash <> '' FROM users WHERE id = $1`, userID,
	).Scan(&hasPassword)
	if pg.IsNotFoundError(err) {
		return false, oauth.ErrUserNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check password: %w", err)
	}
	return hasPassword, nil
}

var _ oauth.UserDirectory = (*Users)(nil)
