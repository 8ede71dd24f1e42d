package oauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/oauthcore/svc/oauth"
	"github.com/dmitrymomot/oauthcore/svc/oauth/memstore"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) FindOrCreateUser(ctx context.Context, email string, profile oauth.UserProfile) (uuid.UUID, error) {
	args := m.Called(ctx, email, profile)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockDirectory) LookupUserByEmail(ctx context.Context, email string) (*oauth.DirectoryUser, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*oauth.DirectoryUser), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDirectory) CanRemoveAuthMethod(ctx context.Context, userID uuid.UUID, remaining int) (bool, error) {
	args := m.Called(ctx, userID, remaining)
	return args.Bool(0), args.Error(1)
}

func identity(sub, email string, verified bool) oauth.Identity {
	return oauth.Identity{
		Provider: "google",
		Info: oauth.UserInfo{
			ProviderUserID: sub,
			Email:          email,
			EmailVerified:  verified,
			DisplayName:    "Ada",
			RawProfile:     json.RawMessage(`{"sub":"` + sub + `"}`),
		},
	}
}

func newResolver(t *testing.T, store oauth.AccountStore, users oauth.UserDirectory, opts ...oauth.ResolverOption) *oauth.Resolver {
	t.Helper()
	r, err := oauth.NewResolver(store, users, opts...)
	require.NoError(t, err)
	return r
}

func TestResolver_NewUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := &mockDirectory{}
	store := memstore.New()
	userID := uuid.New()

	users.On("LookupUserByEmail", mock.Anything, "ada@example.com").Return(nil, oauth.ErrUserNotFound).Once()
	users.On("FindOrCreateUser", mock.Anything, "ada@example.com", oauth.UserProfile{
		Email: "ada@example.com", EmailVerified: true, DisplayName: "Ada", Provider: "google",
	}).Return(userID, nil).Once()

	res, err := newResolver(t, store, users).Resolve(ctx, identity("s1", " Ada@Example.com ", true))
	require.NoError(t, err)
	assert.Equal(t, oauth.OutcomeSignedUp, res.Outcome)
	assert.Equal(t, userID, res.UserID)
	assert.Equal(t, "ada@example.com", res.Account.Email)
	users.AssertExpectations(t)
}

func TestResolver_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := &mockDirectory{}
	store := memstore.New()
	userID := uuid.New()

	users.On("LookupUserByEmail", mock.Anything, "ada@example.com").Return(nil, oauth.ErrUserNotFound).Once()
	users.On("FindOrCreateUser", mock.Anything, "ada@example.com", mock.Anything).Return(userID, nil).Once()

	r := newResolver(t, store, users)
	first, err := r.Resolve(ctx, identity("s1", "ada@example.com", true))
	require.NoError(t, err)

	for range 3 {
		again, err := r.Resolve(ctx, identity("s1", "ada@example.com", true))
		require.NoError(t, err)
		assert.Equal(t, oauth.OutcomeSignedIn, again.Outcome)
		assert.Equal(t, first.Account.ID, again.Account.ID)
	}

	accounts, err := store.ListAccountsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	users.AssertExpectations(t)
}

// racingStore simulates another request creating the account between the
// lookup and the insert.
type racingStore struct {
	*memstore.Store
	winner oauth.Account
}

func (s *racingStore) CreateAccount(ctx context.Context, acc *oauth.Account) error {
	w := s.winner
	_ = s.Store.CreateAccount(ctx, &w)
	return s.Store.CreateAccount(ctx, acc)
}

func TestResolver_UniqueViolationReadsWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	userID := uuid.New()
	winner := oauth.Account{ID: uuid.New(), UserID: userID, Provider: "google", ProviderUserID: "s1"}

	users := &mockDirectory{}
	users.On("LookupUserByEmail", mock.Anything, mock.Anything).Return(&oauth.DirectoryUser{ID: userID, HasPassword: true}, nil)

	res, err := newResolver(t, &racingStore{Store: memstore.New(), winner: winner}, users).
		Resolve(ctx, identity("s1", "ada@example.com", true))
	require.NoError(t, err)
	assert.Equal(t, winner.ID, res.Account.ID)

	winner.UserID = uuid.New()
	_, err = newResolver(t, &racingStore{Store: memstore.New(), winner: winner}, users).
		Resolve(ctx, identity("s1", "ada@example.com", true))
	assert.ErrorIs(t, err, oauth.ErrAlreadyLinkedToAnotherUser)
}

func TestResolver_LinkingRules(t *testing.T) {
	t.Parallel()
	existing := &oauth.DirectoryUser{ID: uuid.New(), HasPassword: true}
	passwordless := &oauth.DirectoryUser{ID: uuid.New()}

	tests := []struct {
		name     string
		user     *oauth.DirectoryUser
		verified bool
		stepUp   bool
		want     oauth.Outcome
		wantErr  error
	}{
		{"verified email links", existing, true, true, oauth.OutcomeAutoLinked, nil},
		{"unverified email refused", existing, false, true, "", oauth.ErrAmbiguousIdentity},
		{"unverified refused without step-up", existing, false, false, "", oauth.ErrAmbiguousIdentity},
		{"passwordless needs step-up", passwordless, true, true, "", oauth.ErrAmbiguousIdentity},
		{"passwordless links when step-up is off", passwordless, true, false, oauth.OutcomeAutoLinked, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			users := &mockDirectory{}
			users.On("LookupUserByEmail", mock.Anything, "ada@example.com").Return(tt.user, nil)

			res, err := newResolver(t, memstore.New(), users, oauth.WithStepUp(tt.stepUp)).
				Resolve(context.Background(), identity("s1", "ada@example.com", tt.verified))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				users.AssertNotCalled(t, "FindOrCreateUser", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.user.ID, res.UserID)
		})
	}
}

func TestResolver_ExplicitLink(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := &mockDirectory{}
	store := memstore.New()
	r := newResolver(t, store, users)

	owner := uuid.New()
	id := identity("s1", "", false)
	id.LinkUserID = &owner

	res, err := r.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, oauth.OutcomeLinked, res.Outcome)

	res, err = r.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, oauth.OutcomeAlreadyLinked, res.Outcome)

	intruder := uuid.New()
	id.LinkUserID = &intruder
	_, err = r.Resolve(ctx, id)
	assert.ErrorIs(t, err, oauth.ErrAlreadyLinkedToAnotherUser)

	users.AssertNotCalled(t, "LookupUserByEmail", mock.Anything, mock.Anything)
}

func TestResolver_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	users := &mockDirectory{}
	_, err := newResolver(t, memstore.New(), users).Resolve(ctx, identity("s1", "", true))
	assert.ErrorIs(t, err, oauth.ErrNoEmailAvailable)

	_, err = newResolver(t, memstore.New(), users).Resolve(ctx, identity("", "a@b.c", true))
	assert.ErrorIs(t, err, oauth.ErrUserInfoFailed)

	boom := errors.New("directory down")
	users.On("LookupUserByEmail", mock.Anything, mock.Anything).Return(nil, boom)
	_, err = newResolver(t, memstore.New(), users).Resolve(ctx, identity("s1", "a@b.c", true))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, oauth.ReasonInternal, oauth.ReasonOf(err))

	_, err = oauth.NewResolver(nil, users)
	assert.Error(t, err)
}
