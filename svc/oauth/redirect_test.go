package oauth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

func TestRedirectPolicy(t *testing.T) {
	t.Parallel()
	p := oauth.NewRedirectPolicy("/home", "Docs.App.Test", " ")

	tests := []struct {
		target string
		want   string
	}{
		{"", "/home"},
		{"/settings?tab=accounts", "/settings?tab=accounts"},
		{"//evil.test/path", "/home"},
		{"/\\evil.test", "/home"},
		{"https://docs.app.test/guide", "https://docs.app.test/guide"},
		{"https://DOCS.app.test/guide", "https://DOCS.app.test/guide"},
		{"https://evil.test/", "/home"},
		{"https://user@docs.app.test/", "/home"},
		{"javascript:alert(1)", "/home"},
		{"ftp://docs.app.test/", "/home"},
		{"/ok\r\nSet-Cookie: x=1", "/home"},
		{"relative/path", "/home"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Sanitize(tt.target), "target %q", tt.target)
	}

	assert.Equal(t, "/", oauth.NewRedirectPolicy("").Fallback())
}
