package memstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/svc/oauth"
	"github.com/dmitrymomot/oauthcore/svc/oauth/memstore"
	"github.com/dmitrymomot/oauthcore/svc/oauth/storetest"
)

func TestStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, memstore.New())
}

func TestUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := memstore.NewUsers()

	withPassword := users.Add("Ada@Example.com", true)

	found, err := users.LookupUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, withPassword.ID, found.ID)
	assert.True(t, found.HasPassword)

	_, err = users.LookupUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, oauth.ErrUserNotFound)

	id, err := users.FindOrCreateUser(ctx, "new@example.com", oauth.UserProfile{DisplayName: "New"})
	require.NoError(t, err)
	again, err := users.FindOrCreateUser(ctx, "NEW@example.com", oauth.UserProfile{})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 2, users.Len())

	u, ok := users.Get(id)
	require.True(t, ok)
	assert.Equal(t, "New", u.DisplayName)
	assert.False(t, u.HasPassword)

	ok, err = users.CanRemoveAuthMethod(ctx, id, 0)
	require.NoError(t, err)
	assert.False(t, ok, "last sign-in method")
	ok, err = users.CanRemoveAuthMethod(ctx, id, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = users.CanRemoveAuthMethod(ctx, withPassword.ID, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = users.CanRemoveAuthMethod(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, oauth.ErrUserNotFound)
}
