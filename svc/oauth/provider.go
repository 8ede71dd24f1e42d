package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
	"golang.org/x/text/unicode/norm"
)

// Provider hides the differences between identity providers.
type Provider interface {
	ID() string
	Kind() ProviderKind
	AuthorizationURL(state, codeChallenge, redirectURI string) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenSet, error)
	FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
	// ExtractPrimaryEmail picks the email to use from a raw profile. It
	// returns ErrNoEmailAvailable when none qualifies.
	ExtractPrimaryEmail(raw json.RawMessage) (email string, verified bool, err error)
}

// IDTokenEnricher is implemented by providers that carry identity claims in
// the ID token returned next to the access token.
type IDTokenEnricher interface {
	EnrichFromIDToken(info *UserInfo, idToken string)
}

const (
	defaultHTTPTimeout = 10 * time.Second
	maxProfileBytes    = 1 << 20
	maxDisplayNameLen  = 200
)

type providerOptions struct {
	httpClient *http.Client
	backoff    func() retry.Backoff
}

// ProviderOption configures provider adapters.
type ProviderOption func(*providerOptions)

// WithHTTPClient sets the client used for provider calls.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(o *providerOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithRetryBackoff sets the backoff used for the single transient retry.
func WithRetryBackoff(base time.Duration) ProviderOption {
	return func(o *providerOptions) {
		if base > 0 {
			o.backoff = func() retry.Backoff {
				return retry.WithMaxRetries(1, retry.NewConstant(base))
			}
		}
	}
}

func newProviderOptions(opts []ProviderOption) providerOptions {
	o := providerOptions{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(1, retry.NewExponential(250*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// oauthClient holds the protocol plumbing shared by every adapter.
type oauthClient struct {
	id         string
	kind       ProviderKind
	conf       oauth2.Config
	authParams map[string]string
	refresh    bool
	httpClient *http.Client
	backoff    func() retry.Backoff
}

func newOAuthClient(cfg ProviderConfig, endpoint oauth2.Endpoint, defaultScopes []string, o providerOptions) (*oauthClient, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidProvider)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required for %s", ErrInvalidProvider, cfg.ID)
	}
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		return nil, fmt.Errorf("%w: endpoints are required for %s", ErrInvalidProvider, cfg.ID)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	return &oauthClient{
		id:   cfg.ID,
		kind: cfg.Kind,
		conf: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		authParams: cfg.AuthParams,
		refresh:    !cfg.NoRefresh,
		httpClient: o.httpClient,
		backoff:    o.backoff,
	}, nil
}

func (c *oauthClient) ID() string { return c.id }

func (c *oauthClient) Kind() ProviderKind { return c.kind }

func (c *oauthClient) config(redirectURI string) *oauth2.Config {
	conf := c.conf
	conf.RedirectURL = redirectURI
	return &conf
}

func (c *oauthClient) AuthorizationURL(state, codeChallenge, redirectURI string) (string, error) {
	if state == "" || codeChallenge == "" {
		return "", fmt.Errorf("%w: state and code challenge are required", ErrInvalidState)
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	for k, v := range c.authParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return c.config(redirectURI).AuthCodeURL(state, opts...), nil
}

func (c *oauthClient) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenSet, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	conf := c.config(redirectURI)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var tok *oauth2.Token
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var err error
		tok, err = conf.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
		return classifyTokenError(ctx, err)
	})
	if err != nil {
		return nil, wrapUpstream(ErrTokenExchangeFailed, err)
	}
	return tokenSetFrom(tok), nil
}

func (c *oauthClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if !c.refresh {
		return nil, ErrRefreshUnsupported
	}
	if refreshToken == "" {
		return nil, ErrInvalidGrant
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var tok *oauth2.Token
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var err error
		tok, err = c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		return classifyTokenError(ctx, err)
	})
	if err != nil {
		return nil, wrapUpstream(ErrTokenExchangeFailed, err)
	}
	return tokenSetFrom(tok), nil
}

// getJSON performs an authenticated GET and returns the raw body.
func (c *oauthClient) getJSON(ctx context.Context, url, accessToken string) (json.RawMessage, error) {
	var body []byte
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retryableTransport(ctx, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
		if err != nil {
			return retry.RetryableError(err)
		}
		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(&httpStatusError{status: resp.StatusCode})
		case resp.StatusCode >= 400:
			return &httpStatusError{status: resp.StatusCode}
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, wrapUpstream(ErrUserInfoFailed, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: malformed response", ErrUserInfoFailed)
	}
	return body, nil
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

// classifyTokenError marks transient token endpoint failures retryable and
// maps client errors to ErrInvalidGrant.
func classifyTokenError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		if re.Response.StatusCode >= 500 {
			return retry.RetryableError(err)
		}
		return fmt.Errorf("%w: %s", ErrInvalidGrant, errorCode(re))
	}
	return retryableTransport(ctx, err)
}

// retryableTransport retries network failures unless the caller gave up.
func retryableTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return retry.RetryableError(err)
}

func errorCode(re *oauth2.RetrieveError) string {
	if re.ErrorCode != "" {
		return re.ErrorCode
	}
	return fmt.Sprintf("status %d", re.Response.StatusCode)
}

// wrapUpstream keeps ErrInvalidGrant visible and tags everything else with
// the operation sentinel.
func wrapUpstream(op, err error) error {
	if errors.Is(err, ErrInvalidGrant) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", op, err)
	}
	return fmt.Errorf("%w: %v", op, err)
}

func tokenSetFrom(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
	}
	if v, ok := tok.Extra("scope").(string); ok {
		ts.Scope = v
	}
	if v, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = v
	}
	if secs := numberExtra(tok.Extra("refresh_token_expires_in")); secs > 0 {
		ts.RefreshExpiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return ts
}

func numberExtra(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		var i int64
		_, _ = fmt.Sscan(n, &i)
		return i
	}
	return 0
}

// normalizeName NFC-normalizes a display name and bounds its length.
func normalizeName(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if utf8.RuneCountInString(s) > maxDisplayNameLen {
		s = string([]rune(s)[:maxDisplayNameLen])
	}
	return s
}

// normalizeEmail lowercases and trims an address.
func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

func decodeProfile(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfoFailed, err)
	}
	return m, nil
}

func claimString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

func claimBool(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}
