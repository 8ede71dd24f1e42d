// Package pkce generates and validates the values that protect an OAuth2
// authorization code flow: PKCE verifier/challenge pairs (RFC 7636, S256 only)
// and anti-CSRF state tokens.
//
// All random material comes from crypto/rand and is encoded with unpadded
// URL-safe base64, so values can be placed in query strings without escaping.
//
//	verifier, challenge, err := pkce.GeneratePair()
//	state, err := pkce.GenerateState()
//
// State validation compares in constant time and enforces a maximum age:
//
//	if err := pkce.ValidateState(submitted, stored, issuedAt, time.Now(), 5*time.Minute); err != nil {
//		// pkce.ErrStateMismatch or pkce.ErrStateExpired
//	}
//
// Detecting a state that was already used is the job of the store that holds it;
// see pkg/ttlstore for an atomic consume operation.
package pkce
