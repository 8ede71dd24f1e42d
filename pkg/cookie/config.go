package cookie

import (
	"net/http"
	"strings"
)

// Config holds cookie manager settings loaded from the environment.
type Config struct {
	Secrets  string        `env:"COOKIE_SECRETS,required"`
	Path     string        `env:"COOKIE_PATH" envDefault:"/"`
	Domain   string        `env:"COOKIE_DOMAIN"`
	Secure   bool          `env:"COOKIE_SECURE" envDefault:"true"`
	SameSite http.SameSite `env:"COOKIE_SAME_SITE" envDefault:"2"` // 2 = Lax; Strict drops the cookie on the provider redirect
}

// SecretList splits the comma separated secrets, newest first.
func (c Config) SecretList() []string {
	var out []string
	for _, s := range strings.Split(c.Secrets, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NewFromConfig creates a Manager from cfg. Extra options win over cfg.
func NewFromConfig(cfg Config, opts ...Option) (*Manager, error) {
	base := []Option{WithSecure(cfg.Secure)}
	if cfg.Path != "" {
		base = append(base, WithPath(cfg.Path))
	}
	if cfg.Domain != "" {
		base = append(base, WithDomain(cfg.Domain))
	}
	if cfg.SameSite != 0 {
		base = append(base, WithSameSite(cfg.SameSite))
	}
	return New(cfg.SecretList(), append(base, opts...)...)
}
