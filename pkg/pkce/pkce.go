package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"
)

const (
	// MethodS256 is the only challenge method this package produces.
	MethodS256 = "S256"

	// MinVerifierLength and MaxVerifierLength are the bounds from RFC 7636 §4.1.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// verifierBytes yields an 86 character verifier.
	verifierBytes = 64

	// stateBytes gives 256 bits of entropy.
	stateBytes = 32
)

// GeneratePair returns a fresh code verifier and its S256 challenge.
func GeneratePair() (verifier, challenge string, err error) {
	verifier, err = randomString(verifierBytes)
	if err != nil {
		return "", "", err
	}
	return verifier, Challenge(verifier), nil
}

// Challenge computes base64url(SHA-256(verifier)) without padding.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPair reports whether challenge was derived from verifier.
func VerifyPair(verifier, challenge string) bool {
	if ValidateVerifier(verifier) != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Challenge(verifier)), []byte(challenge)) == 1
}

// ValidateVerifier checks length and the unreserved character set of RFC 7636.
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return ErrInvalidVerifier
	}
	for i := 0; i < len(verifier); i++ {
		c := verifier[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return ErrInvalidVerifier
		}
	}
	return nil
}

// GenerateState returns a random URL-safe state token.
func GenerateState() (string, error) {
	return randomString(stateBytes)
}

// ValidateState checks a state round-tripped through the provider against the
// stored value. Values are compared in constant time; a state older than ttl
// fails with ErrStateExpired even when it matches.
func ValidateState(submitted, stored string, issuedAt, now time.Time, ttl time.Duration) error {
	if submitted == "" || stored == "" {
		return ErrStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) != 1 {
		return ErrStateMismatch
	}
	if now.Sub(issuedAt) > ttl {
		return ErrStateExpired
	}
	return nil
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrRandomnessFailed, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
