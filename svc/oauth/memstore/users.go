package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/oauthcore/svc/oauth"
)

// User is a directory entry.
type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	HasPassword bool
}

// Users is an in-memory oauth.UserDirectory.
type Users struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]User
	byEmail map[string]uuid.UUID
}

// NewUsers creates an empty directory.
func NewUsers() *Users {
	return &Users{
		byID:    make(map[uuid.UUID]User),
		byEmail: make(map[string]uuid.UUID),
	}
}

// Add inserts a user, typically one that signed up with a password.
func (u *Users) Add(email string, hasPassword bool) User {
	u.mu.Lock()
	defer u.mu.Unlock()

	user := User{ID: uuid.New(), Email: strings.ToLower(email), HasPassword: hasPassword}
	u.byID[user.ID] = user
	u.byEmail[user.Email] = user.ID
	return user
}

// Get returns a user by id.
func (u *Users) Get(id uuid.UUID) (User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byID[id]
	return user, ok
}

// Len returns the number of users.
func (u *Users) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.byID)
}

func (u *Users) FindOrCreateUser(_ context.Context, email string, profile oauth.UserProfile) (uuid.UUID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	email = strings.ToLower(email)
	if id, ok := u.byEmail[email]; ok {
		return id, nil
	}
	user := User{ID: uuid.New(), Email: email, DisplayName: profile.DisplayName}
	u.byID[user.ID] = user
	u.byEmail[email] = user.ID
	return user.ID, nil
}

func (u *Users) LookupUserByEmail(_ context.Context, email string) (*oauth.DirectoryUser, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	id, ok := u.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, oauth.ErrUserNotFound
	}
	return &oauth.DirectoryUser{ID: id, HasPassword: u.byID[id].HasPassword}, nil
}

func (u *Users) CanRemoveAuthMethod(_ context.Context, userID uuid.UUID, remainingLinked int) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byID[userID]
	if !ok {
		return false, oauth.ErrUserNotFound
	}
	return user.HasPassword || remainingLinked > 0, nil
}

var _ oauth.UserDirectory = (*Users)(nil)
