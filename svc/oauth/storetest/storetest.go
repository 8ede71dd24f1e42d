// Package storetest checks oauth.Store implementations against the
// behaviour the service relies on.
package storetest

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

// Run exercises store. Every subtest uses fresh identifiers so the store
// may be shared with other data.
func Run(t *testing.T, store oauth.Store) {
	t.Helper()
	t.Run("accounts", func(t *testing.T) { testAccounts(t, store) })
	t.Run("unique identity", func(t *testing.T) { testUniqueIdentity(t, store) })
	t.Run("token versions", func(t *testing.T) { testTokenVersions(t, store) })
	t.Run("concurrent rotation", func(t *testing.T) { testConcurrentRotation(t, store) })
	t.Run("due tokens", func(t *testing.T) { testDueTokens(t, store) })
	t.Run("delete cascades", func(t *testing.T) { testDeleteCascades(t, store) })
}

func newAccount(userID uuid.UUID, provider string) *oauth.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &oauth.Account{
		ID:             uuid.New(),
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: uuid.NewString(),
		Email:          "user@example.com",
		EmailVerified:  true,
		Profile:        json.RawMessage(`{"sub":"x"}`),
		CreatedAt:      now,
		LastUsedAt:     now,
	}
}

func createAccount(t *testing.T, store oauth.Store, userID uuid.UUID, provider string) *oauth.Account {
	t.Helper()
	acc := newAccount(userID, provider)
	require.NoError(t, store.CreateAccount(context.Background(), acc))
	return acc
}

func testAccounts(t *testing.T, store oauth.Store) {
	ctx := context.Background()
	userID := uuid.New()
	first := createAccount(t, store, userID, "google")
	second := newAccount(userID, "github")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, store.CreateAccount(ctx, second))

	got, err := store.GetAccount(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ProviderUserID, got.ProviderUserID)
	assert.JSONEq(t, `{"sub":"x"}`, string(got.Profile))

	got, err = store.GetAccountByProviderUserID(ctx, "github", second.ProviderUserID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = store.GetAccountByProviderUserID(ctx, "google", second.ProviderUserID)
	assert.ErrorIs(t, err, oauth.ErrAccountNotFound)
	_, err = store.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, oauth.ErrAccountNotFound)

	list, err := store.ListAccountsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	usedAt := first.LastUsedAt.Add(time.Hour)
	require.NoError(t, store.TouchAccount(ctx, first.ID, "new@example.com", false, json.RawMessage(`{"sub":"y"}`), usedAt))
	got, err = store.GetAccount(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
	assert.False(t, got.EmailVerified)
	assert.True(t, usedAt.Equal(got.LastUsedAt))

	require.NoError(t, store.SetReauthRequired(ctx, first.ID, true))
	got, err = store.GetAccount(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.ReauthRequired)

	assert.ErrorIs(t, store.TouchAccount(ctx, uuid.New(), "", false, nil, usedAt), oauth.ErrAccountNotFound)
	assert.ErrorIs(t, store.SetReauthRequired(ctx, uuid.New(), true), oauth.ErrAccountNotFound)
}

func testUniqueIdentity(t *testing.T, store oauth.Store) {
	ctx := context.Background()
	acc := createAccount(t, store, uuid.New(), "google")

	dup := newAccount(uuid.New(), "google")
	dup.ProviderUserID = acc.ProviderUserID
	assert.ErrorIs(t, store.CreateAccount(ctx, dup), oauth.ErrAccountExists)

	other := newAccount(uuid.New(), "github")
	other.ProviderUserID = acc.ProviderUserID
	assert.NoError(t, store.CreateAccount(ctx, other), "same subject at another provider")
}

func tokenFor(accountID uuid.UUID, access string, expires time.Time) *oauth.TokenRecord {
	return &oauth.TokenRecord{
		AccountID:       accountID,
		AccessToken:     access,
		RefreshToken:    "rt-" + access,
		TokenType:       "Bearer",
		AccessExpiresAt: expires,
		UpdatedAt:       time.Now().UTC(),
	}
}

func testTokenVersions(t *testing.T, store oauth.Store) {
	ctx := context.Background()
	acc := createAccount(t, store, uuid.New(), "google")

	_, err := store.GetToken(ctx, acc.ID)
	assert.ErrorIs(t, err, oauth.ErrTokenNotFound)

	rec := tokenFor(acc.ID, "a1", time.Now().Add(time.Hour))
	require.NoError(t, store.SaveToken(ctx, rec, oauth.AnyVersion))
	assert.EqualValues(t, 1, rec.Version)
	firstID := rec.ID

	next := tokenFor(acc.ID, "a2", time.Now().Add(time.Hour))
	require.NoError(t, store.SaveToken(ctx, next, 1))
	assert.EqualValues(t, 2, next.Version)
	assert.Equal(t, firstID, next.ID, "one record per account")

	stale := tokenFor(acc.ID, "a3", time.Now().Add(time.Hour))
	assert.ErrorIs(t, store.SaveToken(ctx, stale, 1), oauth.ErrVersionConflict)

	got, err := store.GetToken(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.EqualValues(t, 2, got.Version)

	replaced := tokenFor(acc.ID, "a4", time.Time{})
	require.NoError(t, store.SaveToken(ctx, replaced, oauth.AnyVersion))
	assert.EqualValues(t, 3, replaced.Version)
	got, err = store.GetToken(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.AccessExpiresAt.IsZero())

	orphan := tokenFor(uuid.New(), "x", time.Time{})
	assert.ErrorIs(t, store.SaveToken(ctx, orphan, oauth.AnyVersion), oauth.ErrAccountNotFound)
}

func testConcurrentRotation(t *testing.T, store oauth.Store) {
	ctx := context.Background()
	acc := createAccount(t, store, uuid.New(), "google")
	require.NoError(t, store.SaveToken(ctx, tokenFor(acc.ID, "base", time.Now()), oauth.AnyVersion))

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.SaveToken(ctx, tokenFor(acc.ID, uuid.NewString(), time.Now()), 1)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, oauth.ErrVersionConflict, "writer %d", i)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testDueTokens(t *testing.T, store oauth.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	userID := uuid.New()

	soon := createAccount(t, store, userID, "google")
	later := createAccount(t, store, userID, "github")
	flagged := createAccount(t, store, userID, "microsoft")
	noRefresh := createAccount(t, store, userID, "facebook")

	require.NoError(t, store.SaveToken(ctx, tokenFor(soon.ID, "s", now.Add(time.Minute)), oauth.AnyVersion))
	require.NoError(t, store.SaveToken(ctx, tokenFor(later.ID, "l", now.Add(time.Hour)), oauth.AnyVersion))
	require.NoError(t, store.SaveToken(ctx, tokenFor(flagged.ID, "f", now.Add(time.Minute)), oauth.AnyVersion))
	require.NoError(t, store.SetReauthRequired(ctx, flagged.ID, true))
	bare := tokenFor(noRefresh.ID, "n", now.Add(time.Minute))
	bare.RefreshToken = ""
	require.NoError(t, store.SaveToken(ctx, bare, oauth.AnyVersion))

	due, err := store.ListTokensDueForRefresh(ctx, now.Add(5*time.Minute), 1000)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(due))
	for _, rec := range due {
		ids = append(ids, rec.AccountID)
	}
	assert.True(t, slices.Contains(ids, soon.ID))
	assert.False(t, slices.Contains(ids, later.ID))
	assert.False(t, slices.Contains(ids, flagged.ID), "accounts awaiting re-authentication are skipped")
	assert.False(t, slices.Contains(ids, noRefresh.ID))

	limited, err := store.ListTokensDueForRefresh(ctx, now.Add(2*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testDeleteCascades(t *testing.T, store oauth.Store) {
	ctx := context.Background()
	acc := createAccount(t, store, uuid.New(), "google")
	require.NoError(t, store.SaveToken(ctx, tokenFor(acc.ID, "a", time.Now()), oauth.AnyVersion))

	require.NoError(t, store.DeleteAccount(ctx, acc.ID))
	_, err := store.GetToken(ctx, acc.ID)
	assert.ErrorIs(t, err, oauth.ErrTokenNotFound)
	_, err = store.GetAccountByProviderUserID(ctx, acc.Provider, acc.ProviderUserID)
	assert.ErrorIs(t, err, oauth.ErrAccountNotFound)
	assert.ErrorIs(t, store.DeleteAccount(ctx, acc.ID), oauth.ErrAccountNotFound)

	again := newAccount(uuid.New(), acc.Provider)
	again.ProviderUserID = acc.ProviderUserID
	assert.NoError(t, store.CreateAccount(ctx, again), "identity is free after unlink")
}
