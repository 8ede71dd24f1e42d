package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2/github"
)

const githubUserURL = "https://api.github.com/user"

type githubProvider struct {
	*oauthClient
	userURL string
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// githubProfile is the raw profile stored for GitHub accounts: the user
// document plus the email list, which GitHub serves separately.
type githubProfile struct {
	User   json.RawMessage `json:"user"`
	Emails []githubEmail   `json:"emails"`
}

// NewGitHubProvider returns the GitHub adapter.
func NewGitHubProvider(cfg ProviderConfig, opts ...ProviderOption) (Provider, error) {
	cfg.Kind = KindGitHub
	client, err := newOAuthClient(cfg, github.Endpoint, []string{"read:user", "user:email"}, newProviderOptions(opts))
	if err != nil {
		return nil, err
	}
	p := &githubProvider{oauthClient: client, userURL: githubUserURL}
	if cfg.UserInfoURL != "" {
		p.userURL = strings.TrimSuffix(cfg.UserInfoURL, "/")
	}
	return p, nil
}

func (p *githubProvider) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	userRaw, err := p.getJSON(ctx, p.userURL, accessToken)
	if err != nil {
		return nil, err
	}
	var user githubUser
	if err := json.Unmarshal(userRaw, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: profile has no id", ErrUserInfoFailed)
	}

	// The email list needs the user:email scope. Without it the account can
	// still sign in when it is already linked.
	profile := githubProfile{User: userRaw}
	if emailsRaw, err := p.getJSON(ctx, p.userURL+"/emails", accessToken); err == nil {
		if err := json.Unmarshal(emailsRaw, &profile.Emails); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
		}
	} else if ctx.Err() != nil {
		return nil, err
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	info := &UserInfo{
		ProviderUserID: fmt.Sprintf("%d", user.ID),
		DisplayName:    normalizeName(name),
		RawProfile:     raw,
	}
	email, verified, err := p.ExtractPrimaryEmail(raw)
	switch {
	case err == nil:
		info.Email, info.EmailVerified = email, verified
	case !errors.Is(err, ErrNoEmailAvailable):
		return nil, err
	}
	return info, nil
}

// ExtractPrimaryEmail prefers the primary verified address, then any
// verified one. Unverified addresses are never used.
func (p *githubProvider) ExtractPrimaryEmail(raw json.RawMessage) (string, bool, error) {
	var profile githubProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	for _, e := range profile.Emails {
		if e.Primary && e.Verified && e.Email != "" {
			return normalizeEmail(e.Email), true, nil
		}
	}
	for _, e := range profile.Emails {
		if e.Verified && e.Email != "" {
			return normalizeEmail(e.Email), true, nil
		}
	}
	return "", false, ErrNoEmailAvailable
}

var _ Provider = (*githubProvider)(nil)
