package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauthcore/pkg/logger"
)

// Manager creates, loads and upgrades browser sessions.
type Manager struct {
	store     Store
	transport Transport
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a session manager.
func New(store Store, transport Transport, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if transport == nil {
		return nil, ErrNoTransport
	}
	m := &Manager{
		store:     store,
		transport: transport,
		config:    DefaultConfig(),
		logger:    logger.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("session"))
	return m, nil
}

// Get loads the session named by the request token.
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := m.transport.GetToken(r)
	if err != nil {
		return nil, err
	}
	s, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.IsExpired(m.now()) {
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Ensure returns the current session, creating an anonymous one when the
// request carries none.
func (m *Manager) Ensure(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	s, err := m.Get(ctx, r)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
		return nil, err
	}

	s, err = m.build(nil)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	m.transport.SetToken(w, s.Token, m.config.AnonTTL)
	return s, nil
}

// Authenticate binds userID to the browser. The token is always replaced
// so a token planted before sign-in is useless afterwards. The session id
// survives the upgrade.
func (m *Manager) Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*Session, error) {
	current, err := m.Get(ctx, r)
	if err != nil && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
		return nil, err
	}

	s, err := m.build(&userID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		s.ID = current.ID
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	if current != nil {
		if err := m.store.Delete(ctx, current.Token); err != nil {
			m.logger.WarnContext(ctx, "failed to delete previous session", logger.Error(err))
		}
	}

	m.transport.SetToken(w, s.Token, m.config.AuthTTL)
	return s, nil
}

// Destroy removes the session and clears the token.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.transport.ClearToken(w)
	token, err := m.transport.GetToken(r)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, token)
}

func (m *Manager) build(userID *uuid.UUID) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := m.now()
	s := &Session{
		ID:        uuid.New(),
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.config.ttl(userID != nil)),
	}
	return s, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
