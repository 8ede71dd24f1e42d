package oauth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/pkg/secrets"
	"github.com/dmitrymomot/oauthcore/svc/oauth"
	"github.com/dmitrymomot/oauthcore/svc/oauth/memstore"
)

func newTestVault(t *testing.T, store oauth.Store, registry *oauth.Registry, opts ...oauth.VaultOption) *oauth.Vault {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	cipher, err := secrets.NewCipher(key)
	require.NoError(t, err)
	v, err := oauth.NewVault(cipher, store, registry, opts...)
	require.NoError(t, err)
	return v
}

func TestVault_EncryptDecrypt(t *testing.T) {
	t.Parallel()
	registry, err := oauth.NewRegistry()
	require.NoError(t, err)
	v := newTestVault(t, memstore.New(), registry)

	acc := uuid.New()
	ct, err := v.Encrypt(acc, "ya29.secret")
	require.NoError(t, err)
	assert.NotContains(t, ct, "ya29")

	pt, err := v.Decrypt(acc, ct)
	require.NoError(t, err)
	assert.Equal(t, "ya29.secret", pt)

	_, err = v.Decrypt(uuid.New(), ct)
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed, "ciphertext is bound to its account")

	other := newTestVault(t, memstore.New(), registry)
	_, err = other.Decrypt(acc, ct)
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed, "wrong key")

	empty, err := v.Encrypt(acc, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestVault_ExpiryWindows(t *testing.T) {
	t.Parallel()
	registry, err := oauth.NewRegistry()
	require.NoError(t, err)
	v := newTestVault(t, memstore.New(), registry)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := func(exp time.Duration) *oauth.TokenRecord {
		return &oauth.TokenRecord{AccessExpiresAt: now.Add(exp)}
	}

	tests := []struct {
		name    string
		rec     *oauth.TokenRecord
		expired bool
		due     bool
	}{
		{"fresh", rec(time.Hour), false, false},
		{"within lead", rec(4 * time.Minute), false, true},
		{"within skew", rec(59 * time.Second), true, true},
		{"past", rec(-time.Second), true, true},
		{"no expiry", &oauth.TokenRecord{}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, v.IsExpired(tt.rec, now))
			assert.Equal(t, tt.due, v.NeedsRefresh(tt.rec, now))
		})
	}
}

// linkedAccount signs a user in through the harness and returns the account.
func linkedAccount(t *testing.T, h *harness) *oauth.Account {
	t.Helper()
	h.idp.setProfile(googleProfile("g-vault", "vault@example.com", true))
	res, err := h.login(t, "google")
	require.NoError(t, err)
	acc, err := h.store.GetAccount(context.Background(), res.AccountID)
	require.NoError(t, err)
	return acc
}

func TestVault_AccessTokenRefreshesWhenDue(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.idp.update(func(f *fakeIdP) { f.expiresIn = 120 }) // inside the refresh lead
	acc := linkedAccount(t, h)
	ctx := context.Background()

	before, err := h.store.GetToken(ctx, acc.ID)
	require.NoError(t, err)

	token, err := h.vault.AccessToken(ctx, acc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.EqualValues(t, 1, h.idp.refreshCalls.Load())

	after, err := h.store.GetToken(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, after.Version)
	assert.Equal(t, before.ID, after.ID, "refresh replaces the record")
	assert.Contains(t, h.audit.Actions(), oauth.ActionTokenRefreshed)
}

func TestVault_RefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.idp.update(func(f *fakeIdP) { f.rotate = false })
	acc := linkedAccount(t, h)
	ctx := context.Background()

	first, err := h.store.GetToken(ctx, acc.ID)
	require.NoError(t, err)

	_, err = h.vault.Refresh(ctx, acc.ID)
	require.NoError(t, err)
	_, err = h.vault.Refresh(ctx, acc.ID)
	require.NoError(t, err)

	last, err := h.store.GetToken(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, first.RefreshToken, last.RefreshToken)
	assert.Zero(t, h.idp.invalidGrants.Load())
}

func TestVault_InvalidGrantRequiresReauth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	acc := linkedAccount(t, h)
	ctx := context.Background()

	h.idp.revokeAll()
	_, err := h.vault.Refresh(ctx, acc.ID)
	require.ErrorIs(t, err, oauth.ErrReauthRequired)
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)

	flagged, err := h.store.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, flagged.ReauthRequired)
	assert.Contains(t, h.audit.Actions(), oauth.ActionReauthRequired)

	_, err = h.vault.AccessToken(ctx, acc.ID)
	assert.ErrorIs(t, err, oauth.ErrReauthRequired)

	// Signing in again stores a fresh token set and clears the flag.
	_, err = h.login(t, "google")
	require.NoError(t, err)
	cleared, err := h.store.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, cleared.ReauthRequired)
}

func TestVault_RefreshUnsupportedWithoutRefreshToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.idp.update(func(f *fakeIdP) { f.noRefresh = true })
	acc := linkedAccount(t, h)

	_, err := h.vault.Refresh(context.Background(), acc.ID)
	assert.ErrorIs(t, err, oauth.ErrRefreshUnsupported)
}

// Scenario E: concurrent refreshes of one account never reuse a rotated
// refresh token, within one instance or across instances.
func TestVault_ConcurrentRefresh(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	acc := linkedAccount(t, h)
	ctx := context.Background()

	before, err := h.store.GetToken(ctx, acc.ID)
	require.NoError(t, err)

	// Two instances sharing the database, the key and the lock backend.
	locker := oauth.NewMemoryLocker()
	a, err := oauth.NewVault(h.cipher, h.store, h.registry, oauth.WithVaultLocker(locker))
	require.NoError(t, err)
	b, err := oauth.NewVault(h.cipher, h.store, h.registry, oauth.WithVaultLocker(locker))
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		v := a
		if i%2 == 1 {
			v = b
		}
		wg.Add(1)
		go func(i int, v *oauth.Vault) {
			defer wg.Done()
			_, errs[i] = v.Refresh(ctx, acc.ID)
		}(i, v)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "refresh %d", i)
	}
	assert.Zero(t, h.idp.invalidGrants.Load(), "a rotated refresh token was reused")

	calls := h.idp.refreshCalls.Load()
	assert.GreaterOrEqual(t, calls, int32(1))
	assert.LessOrEqual(t, calls, int32(n))

	after, err := h.store.GetToken(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version+int64(calls), after.Version)

	flagged, err := h.store.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, flagged.ReauthRequired)

	token, err := b.AccessToken(ctx, acc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestVault_RefreshIfDueSkipsFreshTokens(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	acc := linkedAccount(t, h)

	rec, err := h.vault.RefreshIfDue(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.Version)
	assert.Zero(t, h.idp.refreshCalls.Load())
}

func TestVault_LockWaitTimesOut(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	acc := linkedAccount(t, h)
	ctx := context.Background()

	locker := oauth.NewMemoryLocker()
	release, err := locker.Acquire(ctx, "token-refresh:"+acc.ID.String(), time.Minute)
	require.NoError(t, err)
	defer func() { _ = release(ctx) }()

	v, err := oauth.NewVault(h.cipher, h.store, h.registry,
		oauth.WithVaultLocker(locker),
		oauth.WithLockWait(100*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = v.Refresh(ctx, acc.ID)
	assert.ErrorIs(t, err, oauth.ErrLockNotAcquired)
	assert.Zero(t, h.idp.refreshCalls.Load())
}

func TestMemoryLocker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := oauth.NewMemoryLocker()

	release, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, oauth.ErrLockNotAcquired)

	_, err = l.Acquire(ctx, "other", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "k", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.NoError(t, err, "expired leases are taken over")
}
