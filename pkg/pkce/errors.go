package pkce

import "errors"

var (
	ErrStateMismatch    = errors.New("pkce: state mismatch")
	ErrStateExpired     = errors.New("pkce: state expired")
	ErrInvalidVerifier  = errors.New("pkce: invalid code verifier")
	ErrRandomnessFailed = errors.New("pkce: failed to read random bytes")
)
