package oauth_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

func TestReasonOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{oauth.ErrStateExpired, oauth.ReasonStateExpired},
		{oauth.ErrStateAlreadyConsumed, oauth.ReasonInvalidState},
		{fmt.Errorf("wrapped: %w", oauth.ErrInvalidGrant), oauth.ReasonTokenExchangeFailed},
		{oauth.ErrAmbiguousIdentity, oauth.ReasonConfirmationRequired},
		{&oauth.RateLimitError{Scope: oauth.ScopeCallback, RetryAfter: time.Second}, oauth.ReasonRateLimited},
		{errors.New("database is on fire"), oauth.ReasonInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, oauth.ReasonOf(tt.err), "%v", tt.err)
	}
}

func TestFlowError(t *testing.T) {
	t.Parallel()

	fe := &oauth.FlowError{
		Reason:        oauth.ReasonCodeAlreadyUsed,
		Stage:         oauth.StateStateValidated,
		CorrelationID: "abc123",
		Err:           oauth.ErrCodeAlreadyUsed,
	}
	wrapped := fmt.Errorf("callback: %w", fe)

	assert.ErrorIs(t, wrapped, oauth.ErrCodeAlreadyUsed)
	assert.Equal(t, oauth.ReasonCodeAlreadyUsed, oauth.ReasonOf(wrapped))
	assert.Contains(t, fe.Error(), string(oauth.StateStateValidated))
	assert.Zero(t, oauth.RetryAfter(wrapped))
	assert.True(t, errors.Is(oauth.ErrStateExpired, oauth.ErrInvalidState))
}
