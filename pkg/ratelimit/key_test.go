package ratelimit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/oauthcore/pkg/ratelimit"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"single", []string{"ip"}, "ip"},
		{"joined", []string{"oauth", "initiate", "203.0.113.7"}, "oauth:initiate:203.0.113.7"},
		{"skips empty", []string{"oauth", "", "x"}, "oauth:x"},
		{"all empty", []string{"", ""}, ""},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ratelimit.Key(tt.parts...))
		})
	}
}

func TestKeyHashesLongInput(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("s", 100)
	k := ratelimit.Key("oauth", "callback", long)

	assert.Len(t, k, 32)
	assert.NotContains(t, k, long)
	assert.Equal(t, k, ratelimit.Key("oauth", "callback", long))
	assert.NotEqual(t, k, ratelimit.Key("oauth", "callback", long+"x"))
}
