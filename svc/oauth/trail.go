package oauth

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/oauthcore/pkg/audit"
	"github.com/dmitrymomot/oauthcore/pkg/logger"
)

// Audit actions recorded by the core.
const (
	ActionSignIn         = "oauth.sign_in"
	ActionSignUp         = "oauth.sign_up"
	ActionAccountLinked  = "oauth.account_linked"
	ActionAccountUnlink  = "oauth.account_unlinked"
	ActionCallbackFailed = "oauth.callback_failed"
	ActionRateLimited    = "oauth.rate_limited"
	ActionTokenRefreshed = "oauth.token_refreshed"
	ActionReauthRequired = "oauth.reauth_required"
)

// trail writes audit events; storage failures are logged and swallowed so
// they never change a flow's outcome.
type trail struct {
	audit  *audit.Logger
	logger *slog.Logger
}

func (t trail) success(ctx context.Context, action string, opts ...audit.EventOption) {
	if t.audit == nil {
		return
	}
	if err := t.audit.Log(ctx, action, opts...); err != nil {
		t.logger.WarnContext(ctx, "failed to write audit event", logger.Event(action), logger.Error(err))
	}
}

func (t trail) failure(ctx context.Context, action string, cause error, opts ...audit.EventOption) {
	if t.audit == nil {
		return
	}
	var err error
	if cause != nil {
		err = t.audit.LogError(ctx, action, cause, opts...)
	} else {
		err = t.audit.LogFailure(ctx, action, opts...)
	}
	if err != nil {
		t.logger.WarnContext(ctx, "failed to write audit event", logger.Event(action), logger.Error(err))
	}
}
