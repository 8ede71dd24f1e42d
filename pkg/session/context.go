package session

import (
	"context"

	"github.com/google/uuid"
)

type sessionContextKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session stored by the middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	s, ok := FromContext(ctx)
	if !ok || !s.IsAuthenticated() {
		return uuid.Nil, false
	}
	return *s.UserID, true
}

// AuditUserID adapts UserIDFromContext to the audit logger extractor.
func AuditUserID(ctx context.Context) (string, bool) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", false
	}
	return id.String(), true
}
