package session

import (
	"log/slog"
	"time"
)

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the lifetimes. Zero values keep the defaults.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		if cfg.AnonTTL > 0 {
			m.config.AnonTTL = cfg.AnonTTL
		}
		if cfg.AuthTTL > 0 {
			m.config.AuthTTL = cfg.AuthTTL
		}
	}
}

// WithLogger sets the logger used for store failures that are not returned.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
