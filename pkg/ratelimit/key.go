package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxKeyLength is the maximum allowed length for a rate limit key
// to prevent excessively long storage keys in backends like Redis.
const maxKeyLength = 64

// Key joins non-empty parts with ":". Keys longer than 64 characters are
// replaced by 32 hex chars of their SHA-256 so that raw identifiers such as
// session tokens never reach the store verbatim.
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	combined := strings.Join(kept, ":")
	if len(combined) > maxKeyLength {
		hash := sha256.Sum256([]byte(combined))
		return hex.EncodeToString(hash[:16])
	}
	return combined
}
