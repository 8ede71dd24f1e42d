package session

import "time"

// DefaultCookieName is used when no cookie name is configured.
const DefaultCookieName = "sid"

// Config holds session settings loaded from the environment.
type Config struct {
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
	AnonTTL    time.Duration `env:"SESSION_ANON_TTL" envDefault:"30m"`
	AuthTTL    time.Duration `env:"SESSION_AUTH_TTL" envDefault:"720h"`
}

// DefaultConfig returns the defaults used by New.
func DefaultConfig() Config {
	return Config{
		CookieName: DefaultCookieName,
		AnonTTL:    30 * time.Minute,
		AuthTTL:    30 * 24 * time.Hour,
	}
}

func (c Config) ttl(authenticated bool) time.Duration {
	if authenticated {
		return c.AuthTTL
	}
	return c.AnonTTL
}
