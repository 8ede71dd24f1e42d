package oauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Registry and configuration
	ErrProviderNotFound  = errors.New("oauth: provider not found")
	ErrProviderDisabled  = errors.New("oauth: provider disabled")
	ErrDuplicateProvider = errors.New("oauth: duplicate provider id")
	ErrInvalidProvider   = errors.New("oauth: invalid provider configuration")

	// Protocol and input
	ErrInvalidState         = errors.New("oauth: invalid state")
	ErrStateExpired         = fmt.Errorf("%w: expired", ErrInvalidState)
	ErrStateAlreadyConsumed = fmt.Errorf("%w: already consumed", ErrInvalidState)
	ErrCodeAlreadyUsed      = errors.New("oauth: authorization code already used")
	ErrMissingCode          = errors.New("oauth: authorization code missing")
	ErrProviderDenied       = errors.New("oauth: provider denied authorization")
	ErrNoEmailAvailable     = errors.New("oauth: no usable email address")

	// Upstream
	ErrTokenExchangeFailed = errors.New("oauth: token exchange failed")
	ErrUserInfoFailed      = errors.New("oauth: user info request failed")
	ErrInvalidGrant        = errors.New("oauth: invalid grant")
	ErrRefreshUnsupported  = errors.New("oauth: provider does not support token refresh")

	// Conflicts
	ErrAlreadyLinkedToAnotherUser = errors.New("oauth: identity already linked to another user")
	ErrAmbiguousIdentity          = errors.New("oauth: identity requires confirmation before linking")
	ErrLastAuthMethod             = errors.New("oauth: cannot remove the last authentication method")

	// Session
	ErrSessionFailed = errors.New("oauth: failed to establish session")

	// Throttling
	ErrRateLimited = errors.New("oauth: rate limited")

	// Integrity
	ErrReauthRequired = errors.New("oauth: re-authentication required")

	// Storage
	ErrAccountNotFound = errors.New("oauth: account not found")
	ErrAccountExists   = errors.New("oauth: account already exists")
	ErrTokenNotFound   = errors.New("oauth: token not found")
	ErrVersionConflict = errors.New("oauth: token version conflict")
	ErrUserNotFound    = errors.New("oauth: user not found")
	ErrLockNotAcquired = errors.New("oauth: lock not acquired")
)

// Reason codes exposed at the HTTP boundary. They never carry detail that
// would help an attacker.
const (
	ReasonRateLimited          = "rate_limited"
	ReasonUnknownProvider      = "unknown_provider"
	ReasonProviderDisabled     = "provider_disabled"
	ReasonAccessDenied         = "access_denied"
	ReasonInvalidState         = "invalid_state"
	ReasonStateExpired         = "state_expired"
	ReasonCodeAlreadyUsed      = "code_already_used"
	ReasonInvalidRequest       = "invalid_request"
	ReasonTokenExchangeFailed  = "token_exchange_failed"
	ReasonUserInfoFailed       = "userinfo_failed"
	ReasonNoEmail              = "no_email"
	ReasonAlreadyLinked        = "already_linked"
	ReasonConfirmationRequired = "confirmation_required"
	ReasonLastAuthMethod       = "last_auth_method"
	ReasonNotLinked            = "not_linked"
	ReasonReauthRequired       = "reauth_required"
	ReasonSessionFailed        = "session_failed"
	ReasonInternal             = "internal_error"
)

// ReasonOf maps an error to its boundary reason code.
func ReasonOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) && fe.Reason != "" {
		return fe.Reason
	}

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrProviderNotFound):
		return ReasonUnknownProvider
	case errors.Is(err, ErrProviderDisabled):
		return ReasonProviderDisabled
	case errors.Is(err, ErrProviderDenied):
		return ReasonAccessDenied
	case errors.Is(err, ErrStateExpired):
		return ReasonStateExpired
	case errors.Is(err, ErrInvalidState):
		return ReasonInvalidState
	case errors.Is(err, ErrCodeAlreadyUsed):
		return ReasonCodeAlreadyUsed
	case errors.Is(err, ErrMissingCode):
		return ReasonInvalidRequest
	case errors.Is(err, ErrTokenExchangeFailed), errors.Is(err, ErrInvalidGrant):
		return ReasonTokenExchangeFailed
	case errors.Is(err, ErrUserInfoFailed):
		return ReasonUserInfoFailed
	case errors.Is(err, ErrNoEmailAvailable):
		return ReasonNoEmail
	case errors.Is(err, ErrAlreadyLinkedToAnotherUser):
		return ReasonAlreadyLinked
	case errors.Is(err, ErrAmbiguousIdentity):
		return ReasonConfirmationRequired
	case errors.Is(err, ErrLastAuthMethod):
		return ReasonLastAuthMethod
	case errors.Is(err, ErrAccountNotFound):
		return ReasonNotLinked
	case errors.Is(err, ErrReauthRequired):
		return ReasonReauthRequired
	case errors.Is(err, ErrSessionFailed):
		return ReasonSessionFailed
	default:
		return ReasonInternal
	}
}

// FlowError is the only error type that leaves the orchestrator.
type FlowError struct {
	Reason        string
	Stage         FlowState
	CorrelationID string
	Err           error
}

func newFlowError(stage FlowState, correlationID string, err error) *FlowError {
	return &FlowError{
		Reason:        ReasonOf(err),
		Stage:         stage,
		CorrelationID: correlationID,
		Err:           err,
	}
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("oauth flow failed at %s (%s): %v", e.Stage, e.Reason, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// RateLimitError carries the wait time for a throttled request.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("oauth: rate limited (%s), retry after %s", e.Scope, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the wait time from a rate limit error, or 0.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
