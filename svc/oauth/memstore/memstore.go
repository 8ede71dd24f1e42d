// Package memstore keeps OAuth accounts, tokens and users in memory. It is
// meant for tests and single-process development setups.
package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

// Store implements oauth.Store.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]oauth.Account
	byIdent  map[string]uuid.UUID
	tokens   map[uuid.UUID]oauth.TokenRecord
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]oauth.Account),
		byIdent:  make(map[string]uuid.UUID),
		tokens:   make(map[uuid.UUID]oauth.TokenRecord),
	}
}

func identKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func (s *Store) CreateAccount(_ context.Context, acc *oauth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identKey(acc.Provider, acc.ProviderUserID)
	if _, ok := s.byIdent[key]; ok {
		return oauth.ErrAccountExists
	}
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	s.accounts[acc.ID] = copyAccount(*acc)
	s.byIdent[key] = acc.ID
	return nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*oauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, oauth.ErrAccountNotFound
	}
	acc = copyAccount(acc)
	return &acc, nil
}

func (s *Store) GetAccountByProviderUserID(_ context.Context, provider, providerUserID string) (*oauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdent[identKey(provider, providerUserID)]
	if !ok {
		return nil, oauth.ErrAccountNotFound
	}
	acc := copyAccount(s.accounts[id])
	return &acc, nil
}

func (s *Store) ListAccountsByUser(_ context.Context, userID uuid.UUID) ([]oauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []oauth.Account
	for _, acc := range s.accounts {
		if acc.UserID == userID {
			out = append(out, copyAccount(acc))
		}
	}
	slices.SortFunc(out, func(a, b oauth.Account) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) TouchAccount(_ context.Context, id uuid.UUID, email string, verified bool, profile json.RawMessage, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return oauth.ErrAccountNotFound
	}
	acc.Email = email
	acc.EmailVerified = verified
	acc.Profile = bytes.Clone(profile)
	acc.LastUsedAt = usedAt
	s.accounts[id] = acc
	return nil
}

func (s *Store) SetReauthRequired(_ context.Context, id uuid.UUID, required bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return oauth.ErrAccountNotFound
	}
	acc.ReauthRequired = required
	s.accounts[id] = acc
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return oauth.ErrAccountNotFound
	}
	delete(s.accounts, id)
	delete(s.byIdent, identKey(acc.Provider, acc.ProviderUserID))
	delete(s.tokens, id)
	return nil
}

func (s *Store) GetToken(_ context.Context, accountID uuid.UUID) (*oauth.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tokens[accountID]
	if !ok {
		return nil, oauth.ErrTokenNotFound
	}
	return &rec, nil
}

func (s *Store) SaveToken(_ context.Context, rec *oauth.TokenRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[rec.AccountID]; !ok {
		return oauth.ErrAccountNotFound
	}
	cur, exists := s.tokens[rec.AccountID]
	if expectedVersion != oauth.AnyVersion {
		if !exists || cur.Version != expectedVersion {
			return oauth.ErrVersionConflict
		}
	}

	next := *rec
	next.Version = 1
	if exists {
		next.ID = cur.ID
		next.Version = cur.Version + 1
	} else if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	s.tokens[rec.AccountID] = next
	rec.ID, rec.Version = next.ID, next.Version
	return nil
}

func (s *Store) ListTokensDueForRefresh(_ context.Context, before time.Time, limit int) ([]oauth.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []oauth.TokenRecord
	for id, rec := range s.tokens {
		if rec.RefreshToken == "" || rec.AccessExpiresAt.IsZero() || !rec.AccessExpiresAt.Before(before) {
			continue
		}
		if s.accounts[id].ReauthRequired {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b oauth.TokenRecord) int {
		return a.AccessExpiresAt.Compare(b.AccessExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyAccount(a oauth.Account) oauth.Account {
	a.Profile = bytes.Clone(a.Profile)
	return a
}

var _ oauth.Store = (*Store)(nil)
