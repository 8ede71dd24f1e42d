package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauthcore/pkg/audit"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
	"github.com/dmitrymomot/oauthcore/pkg/pkce"
	"github.com/dmitrymomot/oauthcore/pkg/ttlstore"
)

const (
	DefaultStateTTL = 5 * time.Minute
	DefaultCodeTTL  = 10 * time.Minute
)

// InitiateRequest starts a sign-in or, with LinkUserID, a link flow.
type InitiateRequest struct {
	Provider       string
	RedirectTarget string
	LinkUserID     *uuid.UUID
	ClientIP       string
	// SessionKey identifies the browser; the callback must present the same one.
	SessionKey string
}

// InitiateResult holds where to send the browser.
type InitiateResult struct {
	URL   string
	State string
}

// CallbackRequest carries the provider's redirect parameters.
type CallbackRequest struct {
	Provider         string
	Code             string
	State            string
	Error            string
	ErrorDescription string
	SessionKey       string
	ClientIP         string
}

// CallbackResult describes a completed flow.
type CallbackResult struct {
	UserID         uuid.UUID
	AccountID      uuid.UUID
	RedirectTarget string
	Outcome        Outcome
	State          FlowState
	Steps          []FlowState
}

// Service runs the authorization code flow with PKCE.
type Service struct {
	registry  *Registry
	requests  ttlstore.Store
	accounts  AccountStore
	vault     *Vault
	resolver  *Resolver
	sessions  SessionEstablisher
	users     UserDirectory
	limits    *Limits
	redirects *RedirectPolicy

	callbackURL func(provider string) string
	stateTTL    time.Duration
	codeTTL     time.Duration
	now         func() time.Time

	logger  *slog.Logger
	metrics *Metrics
	trail   trail

	afterAuth func(ctx context.Context, res CallbackResult) error
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStateTTL sets how long an authorization request stays valid.
func WithStateTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.stateTTL = ttl
		}
	}
}

// WithCodeTTL sets how long a used authorization code is remembered.
func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

// WithLimits enables rate limiting.
func WithLimits(l *Limits) ServiceOption {
	return func(s *Service) { s.limits = l }
}

// WithRedirectPolicy sets the post-login redirect policy.
func WithRedirectPolicy(p *RedirectPolicy) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.redirects = p
		}
	}
}

// WithCallbackURL sets how the redirect URI for a provider is built.
func WithCallbackURL(fn func(provider string) string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.callbackURL = fn
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records flow outcomes.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithAudit records sign-ins, links and failures.
func WithAudit(a *audit.Logger) ServiceOption {
	return func(s *Service) { s.trail.audit = a }
}

// WithAfterAuth runs fn after a successful callback (async).
func WithAfterAuth(fn func(context.Context, CallbackResult) error) ServiceOption {
	return func(s *Service) { s.afterAuth = fn }
}

// NewService wires the orchestrator.
func NewService(
	registry *Registry,
	requests ttlstore.Store,
	store Store,
	vault *Vault,
	resolver *Resolver,
	users UserDirectory,
	sessions SessionEstablisher,
	opts ...ServiceOption,
) (*Service, error) {
	switch {
	case registry == nil:
		return nil, errors.New("oauth: registry is required")
	case requests == nil:
		return nil, errors.New("oauth: request store is required")
	case store == nil:
		return nil, errors.New("oauth: account store is required")
	case vault == nil || resolver == nil:
		return nil, errors.New("oauth: vault and resolver are required")
	case users == nil || sessions == nil:
		return nil, errors.New("oauth: user directory and session establisher are required")
	}

	s := &Service{
		registry:  registry,
		requests:  requests,
		accounts:  store,
		vault:     vault,
		resolver:  resolver,
		users:     users,
		sessions:  sessions,
		redirects: NewRedirectPolicy("/"),
		callbackURL: func(provider string) string {
			return "/auth/oauth/" + provider + "/callback"
		},
		stateTTL: DefaultStateTTL,
		codeTTL:  DefaultCodeTTL,
		now:      time.Now,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("oauth"))
	s.trail.logger = s.logger
	return s, nil
}

// Initiate creates an authorization request and returns the provider URL.
// Rate limits are checked before anything is written.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := s.limits.Initiate(ctx, req.ClientIP); err != nil {
		return nil, err
	}
	if req.LinkUserID != nil {
		if err := s.limits.Link(ctx, req.LinkUserID.String()); err != nil {
			return nil, err
		}
	}

	provider, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	verifier, challenge, err := pkce.GeneratePair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pkce pair: %w", err)
	}
	state, err := pkce.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	redirectURI := s.callbackURL(provider.ID())
	authURL, err := provider.AuthorizationURL(state, challenge, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization url: %w", err)
	}

	target := s.redirects.Sanitize(req.RedirectTarget)
	if req.RedirectTarget != "" && target != req.RedirectTarget {
		s.logger.WarnContext(ctx, "redirect target rejected", logger.Provider(provider.ID()))
	}

	ar := AuthorizationRequest{
		State:          state,
		CodeVerifier:   verifier,
		Provider:       provider.ID(),
		LinkUserID:     req.LinkUserID,
		RedirectTarget: target,
		RedirectURI:    redirectURI,
		BrowserBinding: bindingHash(req.SessionKey),
		CreatedAt:      s.now().UTC(),
	}
	data, err := json.Marshal(ar)
	if err != nil {
		return nil, fmt.Errorf("failed to encode authorization request: %w", err)
	}
	if err := s.requests.Put(ctx, requestKey(state), data, s.stateTTL); err != nil {
		return nil, fmt.Errorf("failed to store authorization request: %w", err)
	}

	s.logger.DebugContext(ctx, "oauth flow initiated",
		logger.Provider(provider.ID()),
		logger.CorrelationID(correlationID(state)),
		slog.Bool("link", req.LinkUserID != nil),
	)
	return &InitiateResult{URL: authURL, State: state}, nil
}

// HandleCallback completes a flow. Every failure is a *FlowError whose
// Reason is safe to show to the user.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (*CallbackResult, error) {
	f := newFlow(req.Provider)
	if req.State != "" {
		f.correlationID = correlationID(req.State)
	}
	ctx = logger.WithCorrelation(ctx, f.correlationID)
	log := s.logger.With(logger.Provider(req.Provider), logger.CorrelationID(f.correlationID))

	res, err := s.runCallback(ctx, f, req, log)
	if err != nil {
		fe := f.fail(ctx, err)
		s.metrics.flow(req.Provider, fe.Reason)
		level := slog.LevelWarn
		if fe.Reason == ReasonInternal {
			level = slog.LevelError
		}
		log.Log(ctx, level, "oauth callback failed",
			logger.Reason(fe.Reason),
			slog.String("stage", string(fe.Stage)),
			logger.Error(err),
		)
		s.trail.failure(ctx, ActionCallbackFailed, err,
			audit.WithIP(req.ClientIP),
			audit.WithMetadata("provider", req.Provider),
			audit.WithMetadata("reason", fe.Reason),
			audit.WithMetadata("correlation_id", f.correlationID),
		)
		return nil, fe
	}

	res.State = f.state()
	res.Steps = f.history()
	s.metrics.flow(req.Provider, string(res.Outcome))
	log.InfoContext(ctx, "oauth callback completed",
		logger.UserID(res.UserID),
		logger.AccountID(res.AccountID),
		logger.Outcome(string(res.Outcome)),
	)

	if s.afterAuth != nil {
		result := *res
		go func() {
			ctx := context.WithoutCancel(ctx)
			if err := s.afterAuth(ctx, result); err != nil {
				s.logger.ErrorContext(ctx, "after auth hook failed", logger.UserID(result.UserID), logger.Error(err))
			}
		}()
	}
	return res, nil
}

func (s *Service) runCallback(ctx context.Context, f *flow, req CallbackRequest, log *slog.Logger) (*CallbackResult, error) {
	session := req.SessionKey
	if session == "" {
		session = "ip:" + req.ClientIP
	}
	if err := s.limits.Callback(ctx, session); err != nil {
		return nil, err
	}

	provider, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}
	if err := f.advance(ctx, evCallbackReceived); err != nil {
		return nil, err
	}

	// The request is consumed before anything else, so a denied or broken
	// callback cannot be replayed either.
	ar, err := s.consumeRequest(ctx, req.State)
	if err != nil {
		return nil, err
	}
	if err := pkce.ValidateState(req.State, ar.State, ar.CreatedAt, s.now(), s.stateTTL); err != nil {
		if errors.Is(err, pkce.ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrInvalidState
	}
	if ar.Provider != provider.ID() {
		return nil, fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}
	if ar.BrowserBinding != "" && ar.BrowserBinding != bindingHash(req.SessionKey) {
		return nil, fmt.Errorf("%w: browser mismatch", ErrInvalidState)
	}
	if req.Error != "" {
		log.InfoContext(ctx, "provider returned error", slog.String("error", req.Error))
		return nil, fmt.Errorf("%w: %s", ErrProviderDenied, req.Error)
	}
	if req.Code == "" {
		return nil, ErrMissingCode
	}
	if err := f.advance(ctx, evStateValidated); err != nil {
		return nil, err
	}

	fresh, err := s.requests.PutIfAbsent(ctx, usedCodeKey(provider.ID(), req.Code), nil, s.codeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to record authorization code: %w", err)
	}
	if !fresh {
		return nil, ErrCodeAlreadyUsed
	}

	started := time.Now()
	tokens, err := provider.ExchangeCode(ctx, req.Code, ar.CodeVerifier, ar.RedirectURI)
	s.metrics.observe(provider.ID(), "exchange", started)
	if err != nil {
		return nil, err
	}
	if err := f.advance(ctx, evCodeExchanged); err != nil {
		return nil, err
	}

	started = time.Now()
	info, err := provider.FetchUserInfo(ctx, tokens.AccessToken)
	s.metrics.observe(provider.ID(), "userinfo", started)
	if err != nil {
		return nil, err
	}
	if enricher, ok := provider.(IDTokenEnricher); ok && tokens.IDToken != "" {
		enricher.EnrichFromIDToken(info, tokens.IDToken)
	}

	resolution, err := s.resolver.Resolve(ctx, Identity{
		Provider:   provider.ID(),
		Info:       *info,
		LinkUserID: ar.LinkUserID,
	})
	if err != nil {
		return nil, err
	}
	if err := f.advance(ctx, evIdentityResolved); err != nil {
		return nil, err
	}

	if _, err := s.vault.Store(ctx, resolution.Account.ID, tokens); err != nil {
		return nil, err
	}
	if err := f.advance(ctx, evAccountLinked); err != nil {
		return nil, err
	}
	s.auditResolution(ctx, req, resolution)

	// Linking is done by a signed-in user; the session already exists.
	if ar.LinkUserID == nil {
		if err := s.sessions.EstablishSession(ctx, resolution.UserID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionFailed, err)
		}
	}
	if err := f.advance(ctx, evSessionEstablished); err != nil {
		return nil, err
	}

	return &CallbackResult{
		UserID:         resolution.UserID,
		AccountID:      resolution.Account.ID,
		RedirectTarget: s.redirects.Sanitize(ar.RedirectTarget),
		Outcome:        resolution.Outcome,
	}, nil
}

func (s *Service) consumeRequest(ctx context.Context, state string) (*AuthorizationRequest, error) {
	if state == "" {
		return nil, fmt.Errorf("%w: missing state", ErrInvalidState)
	}
	data, err := s.requests.Consume(ctx, requestKey(state))
	switch {
	case errors.Is(err, ttlstore.ErrConsumed):
		return nil, ErrStateAlreadyConsumed
	case errors.Is(err, ttlstore.ErrNotFound):
		return nil, ErrInvalidState
	case err != nil:
		return nil, fmt.Errorf("failed to consume authorization request: %w", err)
	}

	var ar AuthorizationRequest
	if err := json.Unmarshal(data, &ar); err != nil {
		return nil, fmt.Errorf("%w: corrupt authorization request", ErrInvalidState)
	}
	return &ar, nil
}

func (s *Service) auditResolution(ctx context.Context, req CallbackRequest, r *Resolution) {
	action := ActionSignIn
	switch r.Outcome {
	case OutcomeSignedUp:
		action = ActionSignUp
	case OutcomeLinked, OutcomeAutoLinked:
		action = ActionAccountLinked
	}
	s.trail.success(ctx, action,
		audit.WithUserID(r.UserID.String()),
		audit.WithIP(req.ClientIP),
		audit.WithResource("oauth_account", r.Account.ID.String()),
		audit.WithMetadata("provider", r.Account.Provider),
		audit.WithMetadata("outcome", string(r.Outcome)),
	)
}

// Unlink removes the user's account at provider and its tokens. The user
// must keep at least one way to sign in.
func (s *Service) Unlink(ctx context.Context, userID uuid.UUID, provider string) error {
	if err := s.limits.Link(ctx, userID.String()); err != nil {
		return err
	}

	accounts, err := s.accounts.ListAccountsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	var target *Account
	for i := range accounts {
		if accounts[i].Provider == provider {
			target = &accounts[i]
			break
		}
	}
	if target == nil {
		return ErrAccountNotFound
	}

	ok, err := s.users.CanRemoveAuthMethod(ctx, userID, len(accounts)-1)
	if err != nil {
		return fmt.Errorf("failed to check remaining auth methods: %w", err)
	}
	if !ok {
		return ErrLastAuthMethod
	}

	if err := s.accounts.DeleteAccount(ctx, target.ID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	s.logger.InfoContext(ctx, "oauth account unlinked",
		logger.UserID(userID), logger.AccountID(target.ID), logger.Provider(provider))
	s.trail.success(ctx, ActionAccountUnlink,
		audit.WithUserID(userID.String()),
		audit.WithResource("oauth_account", target.ID.String()),
		audit.WithMetadata("provider", provider),
	)
	return nil
}

// Accounts lists the user's linked accounts.
func (s *Service) Accounts(ctx context.Context, userID uuid.UUID) ([]Account, error) {
	accounts, err := s.accounts.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// Providers lists the enabled provider ids.
func (s *Service) Providers() []string {
	return s.registry.IDs()
}

// SafeRedirect applies the redirect policy to target.
func (s *Service) SafeRedirect(target string) string {
	return s.redirects.Sanitize(target)
}
