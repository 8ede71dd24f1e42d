package oauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

// loginAs signs a distinct google user in.
func loginAs(t *testing.T, h *harness, sub, email string) *oauth.CallbackResult {
	t.Helper()
	h.idp.setProfile(googleProfile(sub, email, true))
	res, err := h.login(t, "google")
	require.NoError(t, err)
	return res
}

func TestScheduler_RunOnceRefreshesDueTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	h.idp.update(func(f *fakeIdP) { f.expiresIn = 120 })
	due1 := loginAs(t, h, "s-1", "one@example.com")
	due2 := loginAs(t, h, "s-2", "two@example.com")
	h.idp.update(func(f *fakeIdP) { f.expiresIn = 3600 })
	fresh := loginAs(t, h, "s-3", "three@example.com")

	freshBefore, err := h.store.GetToken(ctx, fresh.AccountID)
	require.NoError(t, err)

	sched := oauth.NewRefreshScheduler(h.vault, oauth.WithConcurrency(2), oauth.WithBatchSize(10))
	n, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 2, h.idp.refreshCalls.Load())

	for _, id := range []*oauth.CallbackResult{due1, due2} {
		rec, err := h.store.GetToken(ctx, id.AccountID)
		require.NoError(t, err)
		assert.False(t, h.vault.NeedsRefresh(rec, time.Now()))
	}
	freshAfter, err := h.store.GetToken(ctx, fresh.AccountID)
	require.NoError(t, err)
	assert.Equal(t, freshBefore.Version, freshAfter.Version)

	n, err = sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_RevokedTokensFlagAccounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	h.idp.update(func(f *fakeIdP) { f.expiresIn = 120 })
	res := loginAs(t, h, "s-1", "one@example.com")
	h.idp.revokeAll()

	sched := oauth.NewRefreshScheduler(h.vault)
	n, err := sched.RunOnce(ctx)
	require.NoError(t, err, "individual failures are not fatal")
	assert.Zero(t, n)

	acc, err := h.store.GetAccount(ctx, res.AccountID)
	require.NoError(t, err)
	assert.True(t, acc.ReauthRequired)
	assert.Contains(t, h.audit.Actions(), oauth.ActionReauthRequired)

	n, err = sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 1, h.idp.refreshCalls.Load(), "flagged accounts are skipped")
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.idp.update(func(f *fakeIdP) { f.expiresIn = 120 })
	res := loginAs(t, h, "s-1", "one@example.com")
	h.idp.update(func(f *fakeIdP) { f.expiresIn = 3600 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- oauth.NewRefreshScheduler(h.vault, oauth.WithInterval(10*time.Millisecond)).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		rec, err := h.store.GetToken(context.Background(), res.AccountID)
		return err == nil && !h.vault.NeedsRefresh(rec, time.Now())
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "scheduler did not stop")
	}
}
