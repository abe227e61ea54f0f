// Package memory is an in-process authcore.CredentialStore. It backs tests,
// the load generator and single-node development servers. Data is lost when
// the process exits.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
)

type pairKey struct {
	email  string
	userID string
}

// Store keeps every record in maps guarded by one mutex. Username and email
// uniqueness is case-insensitive.
type Store struct {
	mu sync.Mutex

	users      map[string]*authcore.User
	byEmail    map[string]string
	byUsername map[string]string

	verifications map[pairKey]authcore.EmailVerification
	resets        map[pairKey]authcore.PasswordResetToken
}

var _ authcore.CredentialStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]*authcore.User),
		byEmail:       make(map[string]string),
		byUsername:    make(map[string]string),
		verifications: make(map[pairKey]authcore.EmailVerification),
		resets:        make(map[pairKey]authcore.PasswordResetToken),
	}
}

func fold(s string) string {
	return strings.ToLower(s)
}

func cloneUser(u *authcore.User) *authcore.User {
	c := *u
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		c.PasswordHash = &h
	}
	if u.LockoutUntil != nil {
		t := *u.LockoutUntil
		c.LockoutUntil = &t
	}
	if u.LockoutReason != nil {
		r := *u.LockoutReason
		c.LockoutReason = &r
	}
	return &c
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByIndex(s.byEmail, email)
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByIndex(s.byUsername, username)
}

func (s *Store) userByIndex(index map[string]string, value string) (*authcore.User, error) {
	id, ok := index[fold(value)]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return cloneUser(u), nil
}

// CreateUser inserts user, rejecting a taken username before a taken email.
func (s *Store) CreateUser(_ context.Context, user *authcore.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[fold(user.Username)]; ok {
		return &authcore.ConflictError{Field: "username"}
	}
	if _, ok := s.byEmail[fold(user.Email)]; ok {
		return &authcore.ConflictError{Field: "email"}
	}
	if _, ok := s.users[user.ID]; ok {
		return &authcore.ConflictError{Field: "id"}
	}

	s.users[user.ID] = cloneUser(user)
	s.byUsername[fold(user.Username)] = user.ID
	s.byEmail[fold(user.Email)] = user.ID
	return nil
}

func (s *Store) UpdateUser(_ context.Context, id string, update authcore.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return authcore.ErrNotFound
	}

	if update.PasswordHash != nil {
		h := *update.PasswordHash
		u.PasswordHash = &h
	}
	if update.EmailVerified != nil {
		u.EmailVerified = *update.EmailVerified
	}
	if update.LoginAttempts != nil {
		u.LoginAttempts = *update.LoginAttempts
	}
	if update.SetLockout {
		u.LockoutUntil = nil
		u.LockoutReason = nil
		if update.LockoutUntil != nil {
			t := *update.LockoutUntil
			u.LockoutUntil = &t
		}
		if update.LockoutReason != nil {
			r := *update.LockoutReason
			u.LockoutReason = &r
		}
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) IncrementLoginAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return 0, authcore.ErrNotFound
	}
	u.LoginAttempts++
	return u.LoginAttempts, nil
}

func (s *Store) CreateEmailVerification(_ context.Context, v authcore.EmailVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications[pairKey{fold(v.Email), v.UserID}] = v
	return nil
}

func (s *Store) FindActiveEmailVerification(_ context.Context, email, otp string, now time.Time) (*authcore.EmailVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.verifications {
		if k.email == fold(email) && v.OTP == otp && v.ExpiresAt.After(now) {
			found := v
			return &found, nil
		}
	}
	return nil, authcore.ErrNotFound
}

func (s *Store) FindLatestEmailVerification(_ context.Context, email, userID string) (*authcore.EmailVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.verifications[pairKey{fold(email), userID}]
	if !ok {
		return nil, authcore.ErrNotFound
	}
	return &v, nil
}

func (s *Store) DeleteEmailVerification(_ context.Context, email, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verifications, pairKey{fold(email), userID})
	return nil
}

func (s *Store) CreatePasswordResetToken(_ context.Context, t authcore.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[pairKey{fold(t.Email), t.UserID}] = t
	return nil
}

func (s *Store) FindActivePasswordResetToken(_ context.Context, token string, now time.Time) (*authcore.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.resets {
		if t.Token == token && t.ExpiresAt.After(now) {
			found := t
			return &found, nil
		}
	}
	return nil, authcore.ErrNotFound
}

func (s *Store) DeletePasswordResetToken(_ context.Context, email, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resets, pairKey{fold(email), userID})
	return nil
}

// PurgeExpired drops verification and reset records that expired at or
// before now and reports how many were removed.
func (s *Store) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, v := range s.verifications {
		if !v.ExpiresAt.After(now) {
			delete(s.verifications, k)
			n++
		}
	}
	for k, t := range s.resets {
		if !t.ExpiresAt.After(now) {
			delete(s.resets, k)
			n++
		}
	}
	return n, nil
}

// SetVerificationCreatedAt rewrites the timestamps of the pending OTP for
// (email, userID). Tests use it to age records without sleeping.
func (s *Store) SetVerificationCreatedAt(email, userID string, createdAt, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pairKey{fold(email), userID}
	v, ok := s.verifications[k]
	if !ok {
		return false
	}
	v.CreatedAt = createdAt
	v.ExpiresAt = expiresAt
	s.verifications[k] = v
	return true
}

// LatestResetToken returns the pending reset record for (email, userID).
func (s *Store) LatestResetToken(email, userID string) (authcore.PasswordResetToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.resets[pairKey{fold(email), userID}]
	return t, ok
}
