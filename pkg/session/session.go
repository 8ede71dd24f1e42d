package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is a browser session. Anonymous sessions have no UserID.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	Token     string     `json:"-"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// IsAuthenticated reports whether the session belongs to a user.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != nil
}

// IsExpired reports whether the session is past its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return s != nil && !now.Before(s.ExpiresAt)
}
