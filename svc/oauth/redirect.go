package oauth

import (
	"net/url"
	"strings"
)

// RedirectPolicy keeps post-login redirects on this site or on an
// allowlisted host.
type RedirectPolicy struct {
	fallback string
	hosts    map[string]bool
}

// NewRedirectPolicy creates a policy. fallback is used for empty or
// rejected targets.
func NewRedirectPolicy(fallback string, allowedHosts ...string) *RedirectPolicy {
	if fallback == "" {
		fallback = "/"
	}
	hosts := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = true
		}
	}
	return &RedirectPolicy{fallback: fallback, hosts: hosts}
}

// Fallback returns the default target.
func (p *RedirectPolicy) Fallback() string {
	return p.fallback
}

// Allowed reports whether target may be redirected to.
func (p *RedirectPolicy) Allowed(target string) bool {
	if target == "" || strings.ContainsAny(target, "\\\r\n\t\x00") {
		return false
	}
	if strings.HasPrefix(target, "/") {
		return !strings.HasPrefix(target, "//")
	}
	u, err := url.Parse(target)
	if err != nil || u.User != nil {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	return p.hosts[strings.ToLower(u.Host)]
}

// Sanitize returns target when allowed and the fallback otherwise.
func (p *RedirectPolicy) Sanitize(target string) string {
	if p.Allowed(target) {
		return target
	}
	return p.fallback
}
