package oauth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/session"
	svc "github.com/dmitrymomot/oauthcore/svc/oauth"
)

// Mountable is a sub-router that can be attached to the application router.
type Mountable interface {
	Handle() http.Handler
}

// Module serves the browser side of the OAuth flow.
type Module struct {
	core     *svc.Service
	sessions *session.Manager
	errorURL string
	logger   *slog.Logger
}

var _ Mountable = (*Module)(nil)

// Option configures a Module.
type Option func(*Module)

// WithErrorURL sets the page failures are redirected to with ?reason=.
func WithErrorURL(u string) Option {
	return func(m *Module) {
		if u != "" {
			m.errorURL = u
		}
	}
}

// WithLogger sets the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates the module. The session manager must be the one passed to
// Establisher when the service was built.
func New(core *svc.Service, sessions *session.Manager, opts ...Option) (*Module, error) {
	if core == nil {
		return nil, errors.New("oauth module: service is required")
	}
	if sessions == nil {
		return nil, errors.New("oauth module: session manager is required")
	}
	m := &Module{
		core:     core,
		sessions: sessions,
		errorURL: "/login",
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("oauth_http"))
	return m, nil
}

// Handle returns the module routes. Mount it under /auth/oauth so the
// callback path matches the redirect URI registered with providers.
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(m.sessions.Middleware)

	r.Get("/providers", m.providers)
	r.Get("/{provider}/login", m.login)
	r.Get("/{provider}/callback", m.callback)

	r.Group(func(r chi.Router) {
		r.Use(m.sessions.RequireAuth)
		r.Get("/accounts", m.accounts)
		r.Get("/{provider}/link", m.link)
		r.Post("/{provider}/unlink", m.unlink)
	})
	return r
}

// Router mounts the module at /auth/oauth on a fresh router.
func Router(module Mountable) chi.Router {
	r := chi.NewRouter()
	r.Mount("/auth/oauth", module.Handle())
	return r
}
