package session

import (
	"net/http"
	"time"

	"github.com/dmitrymomot/oauthcore/pkg/cookie"
)

// Transport moves the session token between client and server.
type Transport interface {
	GetToken(r *http.Request) (string, error)
	SetToken(w http.ResponseWriter, token string, ttl time.Duration)
	ClearToken(w http.ResponseWriter)
}

// CookieTransport carries the token in a signed cookie.
type CookieTransport struct {
	cookies *cookie.Manager
	name    string
}

var _ Transport = (*CookieTransport)(nil)

// NewCookieTransport creates a transport writing cookie name through cookies.
func NewCookieTransport(cookies *cookie.Manager, name string) *CookieTransport {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieTransport{cookies: cookies, name: name}
}

// GetToken reads and verifies the cookie.
func (t *CookieTransport) GetToken(r *http.Request) (string, error) {
	token, err := t.cookies.GetSigned(r, t.name)
	if err != nil || token == "" {
		return "", ErrSessionNotFound
	}
	return token, nil
}

// SetToken writes the cookie with a lifetime of ttl.
func (t *CookieTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) {
	t.cookies.SetSigned(w, t.name, token, cookie.WithMaxAge(int(ttl.Seconds())))
}

// ClearToken expires the cookie.
func (t *CookieTransport) ClearToken(w http.ResponseWriter) {
	t.cookies.Delete(w, t.name)
}
