package pkce_test

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/pkg/pkce"
)

func TestGeneratePair(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 200 {
		verifier, challenge, err := pkce.GeneratePair()
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(verifier), pkce.MinVerifierLength)
		assert.LessOrEqual(t, len(verifier), pkce.MaxVerifierLength)
		assert.NoError(t, pkce.ValidateVerifier(verifier))

		sum := sha256.Sum256([]byte(verifier))
		assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)
		assert.NotContains(t, challenge, "=")
		assert.True(t, pkce.VerifyPair(verifier, challenge))

		_, dup := seen[verifier]
		assert.False(t, dup, "verifier repeated")
		seen[verifier] = struct{}{}
	}
}

func TestChallenge_RFC7636Vector(t *testing.T) {
	t.Parallel()

	// Appendix B of RFC 7636.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", pkce.Challenge(verifier))
}

func TestVerifyPair(t *testing.T) {
	t.Parallel()

	verifier, challenge, err := pkce.GeneratePair()
	require.NoError(t, err)

	other, _, err := pkce.GeneratePair()
	require.NoError(t, err)

	assert.False(t, pkce.VerifyPair(other, challenge))
	assert.False(t, pkce.VerifyPair("short", pkce.Challenge("short")))
	assert.True(t, pkce.VerifyPair(verifier, challenge))
}

func TestValidateVerifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		verifier string
		valid    bool
	}{
		{"min length", strings.Repeat("a", 43), true},
		{"max length", strings.Repeat("Z", 128), true},
		{"too short", strings.Repeat("a", 42), false},
		{"too long", strings.Repeat("a", 129), false},
		{"unreserved symbols", strings.Repeat("-._~", 11), true},
		{"illegal character", strings.Repeat("a", 42) + "+", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := pkce.ValidateVerifier(tt.verifier)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, pkce.ErrInvalidVerifier)
			}
		})
	}
}

func TestGenerateState(t *testing.T) {
	t.Parallel()

	a, err := pkce.GenerateState()
	require.NoError(t, err)
	b, err := pkce.GenerateState()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(raw)*8, 128)
}

func TestValidateState(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	t.Run("matching and fresh", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, pkce.ValidateState("abc", "abc", now.Add(-time.Minute), now, ttl))
	})

	t.Run("exactly at ttl is still valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, pkce.ValidateState("abc", "abc", now.Add(-ttl), now, ttl))
	})

	t.Run("mismatch", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, pkce.ValidateState("abc", "abd", now, now, ttl), pkce.ErrStateMismatch)
	})

	t.Run("empty values never match", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, pkce.ValidateState("", "", now, now, ttl), pkce.ErrStateMismatch)
	})

	t.Run("expired even when matching", func(t *testing.T) {
		t.Parallel()
		err := pkce.ValidateState("abc", "abc", now.Add(-ttl-time.Second), now, ttl)
		assert.ErrorIs(t, err, pkce.ErrStateExpired)
	})
}
