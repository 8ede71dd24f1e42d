package oauth

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
)

type genericProvider struct {
	*oauthClient
	userURL    string
	claims     ClaimMapping
	trustEmail bool
}

// NewGenericProvider returns an adapter for any OAuth2/OIDC provider
// described entirely by configuration.
func NewGenericProvider(cfg ProviderConfig, opts ...ProviderOption) (Provider, error) {
	cfg.Kind = KindGeneric
	if cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("%w: userinfo url is required for %s", ErrInvalidProvider, cfg.ID)
	}
	endpoint := oauth2.Endpoint{AuthStyle: oauth2.AuthStyleAutoDetect}
	client, err := newOAuthClient(cfg, endpoint, []string{"openid", "email", "profile"}, newProviderOptions(opts))
	if err != nil {
		return nil, err
	}

	claims := cfg.Claims
	if claims.Subject == "" {
		claims.Subject = "sub"
	}
	if claims.Email == "" {
		claims.Email = "email"
	}
	if claims.EmailVerified == "" {
		claims.EmailVerified = "email_verified"
	}
	if claims.Name == "" {
		claims.Name = "name"
	}

	return &genericProvider{
		oauthClient: client,
		userURL:     cfg.UserInfoURL,
		claims:      claims,
		trustEmail:  cfg.TrustEmail,
	}, nil
}

func (p *genericProvider) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	raw, err := p.getJSON(ctx, p.userURL, accessToken)
	if err != nil {
		return nil, err
	}
	return buildUserInfo(p, raw, p.claims.Subject, p.claims.Name)
}

func (p *genericProvider) ExtractPrimaryEmail(raw json.RawMessage) (string, bool, error) {
	m, err := decodeProfile(raw)
	if err != nil {
		return "", false, err
	}
	email := normalizeEmail(claimString(m, p.claims.Email))
	if email == "" {
		return "", false, ErrNoEmailAvailable
	}
	return email, p.trustEmail || claimBool(m, p.claims.EmailVerified), nil
}

var _ Provider = (*genericProvider)(nil)
