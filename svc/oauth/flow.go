package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dmitrymomot/oauthcore/pkg/statemachine"
)

// Name implements statemachine.State.
func (s FlowState) Name() string { return string(s) }

const (
	evCallbackReceived   = statemachine.StringEvent("callback_received")
	evStateValidated     = statemachine.StringEvent("state_validated")
	evCodeExchanged      = statemachine.StringEvent("code_exchanged")
	evIdentityResolved   = statemachine.StringEvent("identity_resolved")
	evAccountLinked      = statemachine.StringEvent("account_linked")
	evSessionEstablished = statemachine.StringEvent("session_established")
	evFail               = statemachine.StringEvent("fail")
)

// callbackFlow is shared by every callback; each one runs its own machine.
var callbackFlow = statemachine.MustDefine(StateInitiated,
	statemachine.WithTransition(StateInitiated, StateCallbackReceived, evCallbackReceived),
	statemachine.WithTransition(StateCallbackReceived, StateStateValidated, evStateValidated),
	statemachine.WithTransition(StateStateValidated, StateCodeExchanged, evCodeExchanged),
	statemachine.WithTransition(StateCodeExchanged, StateIdentityResolved, evIdentityResolved),
	statemachine.WithTransition(StateIdentityResolved, StateAccountLinked, evAccountLinked),
	statemachine.WithTransition(StateAccountLinked, StateSessionEstablished, evSessionEstablished),
	statemachine.WithTransitionFromAny(StateFailed, evFail),
	statemachine.WithTerminal(StateSessionEstablished, StateFailed),
)

type flow struct {
	m             *statemachine.Machine
	provider      string
	correlationID string
}

func newFlow(provider string) *flow {
	return &flow{m: callbackFlow.Start(), provider: provider}
}

func (f *flow) state() FlowState {
	return f.m.Current().(FlowState)
}

func (f *flow) advance(ctx context.Context, ev statemachine.Event) error {
	if err := f.m.Fire(ctx, ev, nil); err != nil {
		return fmt.Errorf("flow transition %s: %w", ev.Name(), err)
	}
	return nil
}

// fail moves the flow to FAILED and wraps err with the stage it failed at.
func (f *flow) fail(ctx context.Context, err error) *FlowError {
	stage := f.state()
	_ = f.m.Fire(ctx, evFail, nil)
	return newFlowError(stage, f.correlationID, err)
}

func (f *flow) history() []FlowState {
	states := f.m.History()
	out := make([]FlowState, len(states))
	for i, s := range states {
		out[i] = s.(FlowState)
	}
	return out
}

// correlationID is a short non-reversible handle for a state value, safe
// to log.
func correlationID(state string) string {
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:6])
}

func requestKey(state string) string {
	sum := sha256.Sum256([]byte(state))
	return "authreq:" + hex.EncodeToString(sum[:])
}

func usedCodeKey(provider, code string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + code))
	return "code:" + hex.EncodeToString(sum[:])
}

func bindingHash(sessionKey string) string {
	if sessionKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte("binding\x00" + sessionKey))
	return hex.EncodeToString(sum[:])
}
