package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"golang.org/x/oauth2/microsoft"
)

const microsoftUserURL = "https://graph.microsoft.com/v1.0/me"

type microsoftProvider struct {
	*oauthClient
	userURL string
}

// NewMicrosoftProvider returns the Microsoft identity platform adapter.
// Tenant defaults to "common".
func NewMicrosoftProvider(cfg ProviderConfig, opts ...ProviderOption) (Provider, error) {
	cfg.Kind = KindMicrosoft
	if cfg.AuthParams == nil {
		cfg.AuthParams = map[string]string{"response_mode": "query"}
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	client, err := newOAuthClient(cfg, microsoft.AzureADEndpoint(tenant),
		[]string{"openid", "email", "profile", "offline_access", "User.Read"}, newProviderOptions(opts))
	if err != nil {
		return nil, err
	}
	p := &microsoftProvider{oauthClient: client, userURL: microsoftUserURL}
	if cfg.UserInfoURL != "" {
		p.userURL = cfg.UserInfoURL
	}
	return p, nil
}

func (p *microsoftProvider) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	raw, err := p.getJSON(ctx, p.userURL, accessToken)
	if err != nil {
		return nil, err
	}
	return buildUserInfo(p, raw, "id", "displayName")
}

// ExtractPrimaryEmail uses mail, falling back to the user principal name.
// Microsoft does not assert ownership, so the address is unverified unless
// the ID token says otherwise.
func (p *microsoftProvider) ExtractPrimaryEmail(raw json.RawMessage) (string, bool, error) {
	m, err := decodeProfile(raw)
	if err != nil {
		return "", false, err
	}
	email := claimString(m, "mail")
	if email == "" {
		if upn := claimString(m, "userPrincipalName"); strings.Contains(upn, "@") {
			email = upn
		}
	}
	if email == "" {
		return "", false, ErrNoEmailAvailable
	}
	return normalizeEmail(email), false, nil
}

// EnrichFromIDToken marks the email verified when the ID token carries the
// xms_edov claim for the same address. The token comes straight from the
// token endpoint over TLS, so its payload is read without signature checks.
func (p *microsoftProvider) EnrichFromIDToken(info *UserInfo, idToken string) {
	if info == nil || info.Email == "" {
		return
	}
	claims, ok := idTokenClaims(idToken)
	if !ok || !claimBool(claims, "xms_edov") {
		return
	}
	if normalizeEmail(claimString(claims, "email")) == info.Email {
		info.EmailVerified = true
	}
}

func idTokenClaims(idToken string) (map[string]any, bool) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, false
	}
	claims, err := decodeProfile(payload)
	if err != nil {
		return nil, false
	}
	return claims, true
}

var (
	_ Provider        = (*microsoftProvider)(nil)
	_ IDTokenEnricher = (*microsoftProvider)(nil)
)
