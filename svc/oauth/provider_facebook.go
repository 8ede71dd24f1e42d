package oauth

import (
	"context"
	"encoding/json"
	"net/url"

	"golang.org/x/oauth2/facebook"
)

const facebookUserURL = "https://graph.facebook.com/v19.0/me"

type facebookProvider struct {
	*oauthClient
	userURL string
}

// NewFacebookProvider returns the Facebook adapter. Facebook issues no
// refresh tokens.
func NewFacebookProvider(cfg ProviderConfig, opts ...ProviderOption) (Provider, error) {
	cfg.Kind = KindFacebook
	cfg.NoRefresh = true
	client, err := newOAuthClient(cfg, facebook.Endpoint, []string{"email", "public_profile"}, newProviderOptions(opts))
	if err != nil {
		return nil, err
	}
	userURL := facebookUserURL
	if cfg.UserInfoURL != "" {
		userURL = cfg.UserInfoURL
	}
	u, err := url.Parse(userURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("fields", "id,name,email")
	u.RawQuery = q.Encode()
	return &facebookProvider{oauthClient: client, userURL: u.String()}, nil
}

func (p *facebookProvider) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	raw, err := p.getJSON(ctx, p.userURL, accessToken)
	if err != nil {
		return nil, err
	}
	return buildUserInfo(p, raw, "id", "name")
}

// ExtractPrimaryEmail trusts the address because Facebook only returns
// confirmed ones.
func (p *facebookProvider) ExtractPrimaryEmail(raw json.RawMessage) (string, bool, error) {
	m, err := decodeProfile(raw)
	if err != nil {
		return "", false, err
	}
	email := normalizeEmail(claimString(m, "email"))
	if email == "" {
		return "", false, ErrNoEmailAvailable
	}
	return email, true, nil
}

var _ Provider = (*facebookProvider)(nil)
