package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/oauthcore/pkg/ttlstore"
)

// Store persists sessions by token.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}

// TTLStore keeps sessions in a ttlstore.Store so they expire on their own.
// Keys are SHA-256 digests of the token; the token itself is never stored.
type TTLStore struct {
	kv  ttlstore.Store
	now func() time.Time
}

var _ Store = (*TTLStore)(nil)

// NewTTLStore wraps kv.
func NewTTLStore(kv ttlstore.Store) (*TTLStore, error) {
	if kv == nil {
		return nil, ErrNoStore
	}
	return &TTLStore{kv: kv, now: time.Now}, nil
}

// Save writes s until its expiry.
func (st *TTLStore) Save(ctx context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(st.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := st.kv.Put(ctx, tokenKey(s.Token), data, ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get loads the session for token.
func (st *TTLStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := st.kv.Get(ctx, tokenKey(token))
	if err != nil {
		if errors.Is(err, ttlstore.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	s.Token = token
	return &s, nil
}

// Delete removes the session for token.
func (st *TTLStore) Delete(ctx context.Context, token string) error {
	return st.kv.Delete(ctx, tokenKey(token))
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + hex.EncodeToString(sum[:])
}
