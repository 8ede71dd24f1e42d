package oauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/oauthcore/pkg/config"
)

// Config holds the core settings loaded from the environment.
type Config struct {
	TokenKey        string        `env:"OAUTH_TOKEN_KEY,required"`
	BaseURL         string        `env:"OAUTH_BASE_URL,required"`
	CallbackPath    string        `env:"OAUTH_CALLBACK_PATH" envDefault:"/auth/oauth/{provider}/callback"`
	ErrorURL        string        `env:"OAUTH_ERROR_URL" envDefault:"/login"`
	DefaultRedirect string        `env:"OAUTH_DEFAULT_REDIRECT" envDefault:"/"`
	AllowedHosts    []string      `env:"OAUTH_REDIRECT_ALLOWLIST" envSeparator:","`
	StateTTL        time.Duration `env:"OAUTH_STATE_TTL" envDefault:"5m"`
	CodeTTL         time.Duration `env:"OAUTH_CODE_TTL" envDefault:"10m"`
	RequireStepUp   bool          `env:"OAUTH_REQUIRE_STEP_UP" envDefault:"true"`
	ProvidersFile   string        `env:"OAUTH_PROVIDERS_FILE"`

	RefreshInterval    time.Duration `env:"OAUTH_REFRESH_INTERVAL" envDefault:"1m"`
	RefreshBatch       int           `env:"OAUTH_REFRESH_BATCH" envDefault:"100"`
	RefreshConcurrency int           `env:"OAUTH_REFRESH_CONCURRENCY" envDefault:"4"`

	Google    ProviderEnv `envPrefix:"GOOGLE_OAUTH_"`
	GitHub    ProviderEnv `envPrefix:"GITHUB_OAUTH_"`
	Microsoft ProviderEnv `envPrefix:"MICROSOFT_OAUTH_"`
	Facebook  ProviderEnv `envPrefix:"FACEBOOK_OAUTH_"`
}

// ProviderEnv configures a built-in provider from the environment. A
// provider without a client id is not registered.
type ProviderEnv struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
	Enabled      bool     `env:"ENABLED" envDefault:"true"`
	Tenant       string   `env:"TENANT"`
}

// ProvidersFile is the YAML document listing extra providers.
//
//	providers:
//	  - id: gitlab
//	    kind: generic
//	    client_id: abc
//	    client_secret: ${GITLAB_CLIENT_SECRET}
//	    auth_url: https://gitlab.com/oauth/authorize
//	    token_url: https://gitlab.com/oauth/token
//	    userinfo_url: https://gitlab.com/oauth/userinfo
type ProvidersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// CallbackURL returns the redirect URI registered with a provider.
func (c Config) CallbackURL(provider string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + strings.ReplaceAll(c.CallbackPath, "{provider}", provider)
}

// ProviderConfigs merges the environment providers with the providers file.
func (c Config) ProviderConfigs() ([]ProviderConfig, error) {
	var out []ProviderConfig
	builtin := []struct {
		kind ProviderKind
		env  ProviderEnv
	}{
		{KindGoogle, c.Google},
		{KindGitHub, c.GitHub},
		{KindMicrosoft, c.Microsoft},
		{KindFacebook, c.Facebook},
	}
	for _, b := range builtin {
		if b.env.ClientID == "" {
			continue
		}
		enabled := b.env.Enabled
		out = append(out, ProviderConfig{
			ID:           string(b.kind),
			Kind:         b.kind,
			ClientID:     b.env.ClientID,
			ClientSecret: b.env.ClientSecret,
			Scopes:       b.env.Scopes,
			Tenant:       b.env.Tenant,
			Enabled:      &enabled,
		})
	}

	if c.ProvidersFile != "" {
		var file ProvidersFile
		if err := config.LoadYAML(c.ProvidersFile, &file); err != nil {
			return nil, fmt.Errorf("failed to load providers file: %w", err)
		}
		out = append(out, file.Providers...)
	}
	return out, nil
}

// BuildRegistry constructs the provider registry from configuration.
func BuildRegistry(cfgs []ProviderConfig, opts ...ProviderOption) (*Registry, error) {
	regOpts := make([]RegistryOption, 0, len(cfgs))
	for _, pc := range cfgs {
		p, err := NewProvider(pc, opts...)
		if err != nil {
			return nil, err
		}
		if pc.IsEnabled() {
			regOpts = append(regOpts, WithProvider(p))
		} else {
			regOpts = append(regOpts, WithDisabledProvider(p))
		}
	}
	return NewRegistry(regOpts...)
}
