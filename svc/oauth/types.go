package oauth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProviderKind selects the adapter implementation for a provider.
type ProviderKind string

const (
	KindGoogle    ProviderKind = "google"
	KindGitHub    ProviderKind = "github"
	KindMicrosoft ProviderKind = "microsoft"
	KindFacebook  ProviderKind = "facebook"
	KindGeneric   ProviderKind = "generic"
)

// ClaimMapping names the user info fields a generic provider returns.
type ClaimMapping struct {
	Subject       string `yaml:"subject"`
	Email         string `yaml:"email"`
	EmailVerified string `yaml:"email_verified"`
	Name          string `yaml:"name"`
}

// ProviderConfig describes one identity provider. It is immutable once the
// registry is built.
type ProviderConfig struct {
	ID           string            `yaml:"id"`
	Kind         ProviderKind      `yaml:"kind"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	AuthURL      string            `yaml:"auth_url"`
	TokenURL     string            `yaml:"token_url"`
	UserInfoURL  string            `yaml:"userinfo_url"`
	Scopes       []string          `yaml:"scopes"`
	Enabled      *bool             `yaml:"enabled"`
	Tenant       string            `yaml:"tenant"`
	Claims       ClaimMapping      `yaml:"claims"`
	TrustEmail   bool              `yaml:"trust_email"`
	NoRefresh    bool              `yaml:"no_refresh"`
	AuthParams   map[string]string `yaml:"auth_params"`
}

// IsEnabled treats a missing flag as enabled.
func (c ProviderConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TokenSet is what a provider returns from a code exchange or refresh.
type TokenSet struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	Scope            string
	IDToken          string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// UserInfo is the normalized identity returned by a provider.
type UserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	DisplayName    string
	RawProfile     json.RawMessage
}

// AuthorizationRequest is the short-lived record created by Initiate and
// consumed by the matching callback.
type AuthorizationRequest struct {
	State          string     `json:"state"`
	CodeVerifier   string     `json:"code_verifier"`
	Provider       string     `json:"provider"`
	LinkUserID     *uuid.UUID `json:"link_user_id,omitempty"`
	RedirectTarget string     `json:"redirect_target,omitempty"`
	RedirectURI    string     `json:"redirect_uri"`
	BrowserBinding string     `json:"browser_binding,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Account links an external identity to an internal user.
type Account struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Provider       string
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Profile        json.RawMessage
	ReauthRequired bool
	CreatedAt      time.Time
	LastUsedAt     time.Time
}

// TokenRecord is the single current token set of an account. Token values
// are ciphertext.
type TokenRecord struct {
	ID               uuid.UUID
	AccountID        uuid.UUID
	AccessToken      string
	RefreshToken     string
	TokenType        string
	Scope            string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Version          int64
	UpdatedAt        time.Time
}

// HasRefreshToken reports whether a refresh token is stored.
func (r *TokenRecord) HasRefreshToken() bool {
	return r.RefreshToken != ""
}

// FlowState is a step of the callback flow.
type FlowState string

const (
	StateInitiated          FlowState = "INITIATED"
	StateCallbackReceived   FlowState = "CALLBACK_RECEIVED"
	StateStateValidated     FlowState = "STATE_VALIDATED"
	StateCodeExchanged      FlowState = "CODE_EXCHANGED"
	StateIdentityResolved   FlowState = "IDENTITY_RESOLVED"
	StateAccountLinked      FlowState = "ACCOUNT_LINKED"
	StateSessionEstablished FlowState = "SESSION_ESTABLISHED"
	StateFailed             FlowState = "FAILED"
)

// Outcome describes how identity resolution ended.
type Outcome string

const (
	OutcomeSignedIn      Outcome = "signed_in"
	OutcomeSignedUp      Outcome = "signed_up"
	OutcomeAutoLinked    Outcome = "auto_linked"
	OutcomeLinked        Outcome = "linked"
	OutcomeAlreadyLinked Outcome = "already_linked"
)

// DirectoryUser is what the user collaborator reveals about a user.
type DirectoryUser struct {
	ID          uuid.UUID
	HasPassword bool
}

// UserProfile is handed to the user collaborator when a user is created.
type UserProfile struct {
	Email         string
	EmailVerified bool
	DisplayName   string
	Provider      string
}

// UserDirectory is the narrow view of the user subsystem the core needs.
type UserDirectory interface {
	// FindOrCreateUser returns the user owning email, creating one if needed.
	FindOrCreateUser(ctx context.Context, email string, profile UserProfile) (uuid.UUID, error)
	// LookupUserByEmail returns ErrUserNotFound when no user owns email.
	LookupUserByEmail(ctx context.Context, email string) (*DirectoryUser, error)
	// CanRemoveAuthMethod reports whether the user keeps a way to sign in
	// once one linked account is removed. remainingLinked counts the
	// accounts that would be left.
	CanRemoveAuthMethod(ctx context.Context, userID uuid.UUID, remainingLinked int) (bool, error)
}

// SessionEstablisher starts an authenticated session for a user.
type SessionEstablisher interface {
	EstablishSession(ctx context.Context, userID uuid.UUID) error
}

// SessionEstablisherFunc adapts a function to SessionEstablisher.
type SessionEstablisherFunc func(ctx context.Context, userID uuid.UUID) error

// EstablishSession implements SessionEstablisher.
func (f SessionEstablisherFunc) EstablishSession(ctx context.Context, userID uuid.UUID) error {
	return f(ctx, userID)
}
