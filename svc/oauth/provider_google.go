package oauth

import (
	"context"
	"encoding/json"

	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type googleProvider struct {
	*oauthClient
	userInfoURL string
}

// NewGoogleProvider returns the Google adapter. It asks for offline access
// so a refresh token is issued.
func NewGoogleProvider(cfg ProviderConfig, opts ...ProviderOption) (Provider, error) {
	cfg.Kind = KindGoogle
	if cfg.AuthParams == nil {
		cfg.AuthParams = map[string]string{"access_type": "offline", "prompt": "consent"}
	}
	client, err := newOAuthClient(cfg, google.Endpoint, []string{"openid", "email", "profile"}, newProviderOptions(opts))
	if err != nil {
		return nil, err
	}
	p := &googleProvider{oauthClient: client, userInfoURL: googleUserInfoURL}
	if cfg.UserInfoURL != "" {
		p.userInfoURL = cfg.UserInfoURL
	}
	return p, nil
}

func (p *googleProvider) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	raw, err := p.getJSON(ctx, p.userInfoURL, accessToken)
	if err != nil {
		return nil, err
	}
	return buildUserInfo(p, raw, "sub", "name")
}

func (p *googleProvider) ExtractPrimaryEmail(raw json.RawMessage) (string, bool, error) {
	m, err := decodeProfile(raw)
	if err != nil {
		return "", false, err
	}
	email := normalizeEmail(claimString(m, "email"))
	if email == "" {
		return "", false, ErrNoEmailAvailable
	}
	return email, claimBool(m, "email_verified"), nil
}

var _ Provider = (*googleProvider)(nil)
