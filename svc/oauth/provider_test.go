package oauth_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/pkg/pkce"
	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

const redirectURI = "https://app.test/auth/oauth/google/callback"

func newTestProvider(t *testing.T, cfg oauth.ProviderConfig) oauth.Provider {
	t.Helper()
	p, err := oauth.NewProvider(cfg, oauth.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)
	return p
}

// authorize returns a code the fake provider accepts together with its verifier.
func authorize(t *testing.T, idp *fakeIdP, p oauth.Provider) (code, verifier string) {
	t.Helper()
	verifier, challenge, err := pkce.GeneratePair()
	require.NoError(t, err)
	authURL, err := p.AuthorizationURL("state-1", challenge, redirectURI)
	require.NoError(t, err)
	code, _ = idp.approve(t, authURL)
	return code, verifier
}

func TestGoogle_AuthorizationURL(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	p := newTestProvider(t, idp.config("google", oauth.KindGoogle))

	raw, err := p.AuthorizationURL("st", "challenge", redirectURI)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "challenge", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, redirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "client-google", q.Get("client_id"))
	assert.Equal(t, "openid email profile", q.Get("scope"))

	_, err = p.AuthorizationURL("", "challenge", redirectURI)
	assert.ErrorIs(t, err, oauth.ErrInvalidState)
}

func TestProvider_ExchangeAndUserInfo(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	idp.setProfile(googleProfile("g-1", " Ada@Example.COM", true))
	p := newTestProvider(t, idp.config("google", oauth.KindGoogle))
	ctx := context.Background()

	code, verifier := authorize(t, idp, p)
	tokens, err := p.ExchangeCode(ctx, code, verifier, redirectURI)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "openid email profile", tokens.Scope)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tokens.ExpiresAt, time.Minute)

	info, err := p.FetchUserInfo(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "g-1", info.ProviderUserID)
	assert.Equal(t, "ada@example.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "Ada Lovelace", info.DisplayName)
	assert.JSONEq(t, `{"sub":"g-1","email":" Ada@Example.COM","email_verified":true,"name":"Ada Lovelace"}`, string(info.RawProfile))
}

func TestProvider_WrongVerifierIsInvalidGrant(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	p := newTestProvider(t, idp.config("google", oauth.KindGoogle))

	code, _ := authorize(t, idp, p)
	other, _, err := pkce.GeneratePair()
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), code, other, redirectURI)
	assert.ErrorIs(t, err, oauth.ErrInvalidGrant)
	assert.Equal(t, int32(1), idp.tokenCalls.Load(), "client errors are not retried")

	_, err = p.ExchangeCode(context.Background(), "", other, redirectURI)
	assert.ErrorIs(t, err, oauth.ErrMissingCode)
}

func TestProvider_RetriesTransientFailureOnce(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	idp.setProfile(googleProfile("g-1", "ada@example.com", true))
	p := newTestProvider(t, idp.config("google", oauth.KindGoogle))
	ctx := context.Background()

	idp.update(func(f *fakeIdP) { f.tokenStatus = []int{http.StatusServiceUnavailable} })
	code, verifier := authorize(t, idp, p)
	tokens, err := p.ExchangeCode(ctx, code, verifier, redirectURI)
	require.NoError(t, err)
	assert.Equal(t, int32(2), idp.tokenCalls.Load())

	idp.update(func(f *fakeIdP) { f.userStatus = []int{http.StatusBadGateway} })
	_, err = p.FetchUserInfo(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int32(2), idp.userCalls.Load())

	idp.update(func(f *fakeIdP) { f.tokenStatus = []int{http.StatusBadGateway, http.StatusBadGateway} })
	code, verifier = authorize(t, idp, p)
	_, err = p.ExchangeCode(ctx, code, verifier, redirectURI)
	assert.ErrorIs(t, err, oauth.ErrTokenExchangeFailed)
	assert.NotErrorIs(t, err, oauth.ErrInvalidGrant)

	_, err = p.FetchUserInfo(ctx, "not-a-token")
	assert.ErrorIs(t, err, oauth.ErrUserInfoFailed)
}

func TestProvider_Refresh(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	p := newTestProvider(t, idp.config("google", oauth.KindGoogle))
	ctx := context.Background()

	code, verifier := authorize(t, idp, p)
	first, err := p.ExchangeCode(ctx, code, verifier, redirectURI)
	require.NoError(t, err)

	next, err := p.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, next.AccessToken)
	assert.NotEqual(t, first.RefreshToken, next.RefreshToken)

	_, err = p.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, oauth.ErrInvalidGrant)

	_, err = p.RefreshToken(ctx, "")
	assert.ErrorIs(t, err, oauth.ErrInvalidGrant)
}

func TestGitHub_EmailSelection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	user := map[string]any{"id": 42, "login": "octo", "name": ""}

	tests := []struct {
		name         string
		emails       any
		wantEmail    string
		wantVerified bool
	}{
		{
			name: "primary verified wins",
			emails: []map[string]any{
				{"email": "other@example.com", "primary": false, "verified": true},
				{"email": "Main@Example.com", "primary": true, "verified": true},
			},
			wantEmail:    "main@example.com",
			wantVerified: true,
		},
		{
			name: "falls back to any verified",
			emails: []map[string]any{
				{"email": "main@example.com", "primary": true, "verified": false},
				{"email": "alt@example.com", "primary": false, "verified": true},
			},
			wantEmail:    "alt@example.com",
			wantVerified: true,
		},
		{
			name: "unverified addresses are ignored",
			emails: []map[string]any{
				{"email": "main@example.com", "primary": true, "verified": false},
			},
		},
		{
			name: "missing scope",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			idp := newFakeIdP(t)
			idp.setProfile(user)
			idp.setEmails(tt.emails)
			p := newTestProvider(t, idp.config("github", oauth.KindGitHub))

			info, err := p.FetchUserInfo(ctx, "at-1")
			require.NoError(t, err)
			assert.Equal(t, "42", info.ProviderUserID)
			assert.Equal(t, "octo", info.DisplayName)
			assert.Equal(t, tt.wantEmail, info.Email)
			assert.Equal(t, tt.wantVerified, info.EmailVerified)

			_, _, err = p.ExtractPrimaryEmail(info.RawProfile)
			if tt.wantEmail == "" {
				assert.ErrorIs(t, err, oauth.ErrNoEmailAvailable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func idToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return "eyJhbGciOiJub25lIn0." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestMicrosoft_EmailVerification(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	idp.setProfile(map[string]any{
		"id":                "ms-1",
		"displayName":       "Grace Hopper",
		"mail":              nil,
		"userPrincipalName": "Grace@Contoso.com",
	})
	p := newTestProvider(t, idp.config("microsoft", oauth.KindMicrosoft))

	authURL, err := p.AuthorizationURL("st", "challenge", redirectURI)
	require.NoError(t, err)
	assert.Contains(t, authURL, "response_mode=query")

	info, err := p.FetchUserInfo(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Equal(t, "ms-1", info.ProviderUserID)
	assert.Equal(t, "grace@contoso.com", info.Email)
	assert.False(t, info.EmailVerified)

	enricher, ok := p.(oauth.IDTokenEnricher)
	require.True(t, ok)

	enricher.EnrichFromIDToken(info, idToken(t, map[string]any{"email": "someone@else.com", "xms_edov": true}))
	assert.False(t, info.EmailVerified)

	enricher.EnrichFromIDToken(info, "garbage")
	assert.False(t, info.EmailVerified)

	enricher.EnrichFromIDToken(info, idToken(t, map[string]any{"email": "grace@contoso.com", "xms_edov": true}))
	assert.True(t, info.EmailVerified)
}

func TestFacebook_NoRefresh(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	idp.setProfile(map[string]any{"id": "fb-1", "name": "Alan", "email": "alan@example.com"})
	p := newTestProvider(t, idp.config("facebook", oauth.KindFacebook))
	ctx := context.Background()

	info, err := p.FetchUserInfo(ctx, "at-1")
	require.NoError(t, err)
	assert.Equal(t, "fb-1", info.ProviderUserID)
	assert.Equal(t, "alan@example.com", info.Email)
	assert.True(t, info.EmailVerified)

	_, err = p.RefreshToken(ctx, "rt-1")
	assert.ErrorIs(t, err, oauth.ErrRefreshUnsupported)
	assert.Zero(t, idp.tokenCalls.Load())
}

func TestGeneric_ClaimMapping(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	idp.setProfile(map[string]any{"uid": 7, "mail": "Linus@Example.org", "display": "Linus"})

	cfg := idp.config("gitlab", oauth.KindGeneric)
	cfg.Claims = oauth.ClaimMapping{Subject: "uid", Email: "mail", Name: "display"}
	p := newTestProvider(t, cfg)

	info, err := p.FetchUserInfo(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Equal(t, "7", info.ProviderUserID)
	assert.Equal(t, "linus@example.org", info.Email)
	assert.False(t, info.EmailVerified)
	assert.Equal(t, "Linus", info.DisplayName)

	cfg.TrustEmail = true
	p = newTestProvider(t, cfg)
	_, verified, err := p.ExtractPrimaryEmail(info.RawProfile)
	require.NoError(t, err)
	assert.True(t, verified)

	cfg.UserInfoURL = ""
	_, err = oauth.NewProvider(cfg)
	assert.ErrorIs(t, err, oauth.ErrInvalidProvider)
}

func TestProvider_UserInfoWithoutSubject(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	idp.setProfile(map[string]any{"email": "a@example.com"})
	p := newTestProvider(t, idp.config("google", oauth.KindGoogle))

	_, err := p.FetchUserInfo(context.Background(), "at-1")
	assert.ErrorIs(t, err, oauth.ErrUserInfoFailed)
}

func TestNewProvider_Validation(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)

	cfg := idp.config("google", oauth.KindGoogle)
	cfg.ClientID = ""
	_, err := oauth.NewProvider(cfg)
	assert.ErrorIs(t, err, oauth.ErrInvalidProvider)

	cfg = idp.config("x", "saml")
	_, err = oauth.NewProvider(cfg)
	assert.ErrorIs(t, err, oauth.ErrInvalidProvider)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	idp := newFakeIdP(t)
	google := newTestProvider(t, idp.config("google", oauth.KindGoogle))
	github := newTestProvider(t, idp.config("github", oauth.KindGitHub))
	fb := newTestProvider(t, idp.config("facebook", oauth.KindFacebook))

	reg, err := oauth.NewRegistry(oauth.WithProvider(google), oauth.WithDisabledProvider(fb), oauth.WithProvider(github))
	require.NoError(t, err)

	got, err := reg.Get("google")
	require.NoError(t, err)
	assert.Equal(t, "google", got.ID())

	_, err = reg.Get("facebook")
	assert.ErrorIs(t, err, oauth.ErrProviderDisabled)
	_, ok := reg.Lookup("facebook")
	assert.True(t, ok)

	_, err = reg.Get("myspace")
	assert.ErrorIs(t, err, oauth.ErrProviderNotFound)
	assert.Equal(t, oauth.ReasonUnknownProvider, oauth.ReasonOf(err))

	assert.Equal(t, []string{"google", "github"}, reg.IDs())

	_, err = oauth.NewRegistry(oauth.WithProvider(google), oauth.WithProvider(google))
	assert.ErrorIs(t, err, oauth.ErrDuplicateProvider)
}
