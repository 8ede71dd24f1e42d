package session

import "errors"

var (
	ErrSessionExpired  = errors.New("session.expired")
	ErrSessionNotFound = errors.New("session.not_found")
	ErrTokenGeneration = errors.New("session.token_generation_failed")
	ErrNoTransport     = errors.New("session.no_transport")
	ErrNoStore         = errors.New("session.no_store")
	ErrUnauthenticated = errors.New("session.unauthenticated")
)
