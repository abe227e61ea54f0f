package memory

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/stretchr/testify/require"
)

func TestCreateUserCaseInsensitiveConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &authcore.User{ID: "1", Username: "Alice", Email: "alice@x.com"}))

	err := s.CreateUser(ctx, &authcore.User{ID: "2", Username: "ALICE", Email: "b@x.com"})
	var ce *authcore.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "username", ce.Field)

	err = s.CreateUser(ctx, &authcore.User{ID: "3", Username: "bob", Email: "Alice@X.com"})
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "email", ce.Field)

	u, err := s.FindUserByUsername(ctx, "aLiCe")
	require.NoError(t, err)
	require.Equal(t, "1", u.ID)
}

func TestUpdateUserLockout(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &authcore.User{ID: "1", Username: "a", Email: "a@x.com"}))

	n, err := s.IncrementLoginAttempts(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	until := time.Now().Add(time.Minute)
	reason := "locked"
	require.NoError(t, s.UpdateUser(ctx, "1", authcore.UserUpdate{SetLockout: true, LockoutUntil: &until, LockoutReason: &reason}))

	u, err := s.FindUserByID(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, u.LockoutUntil)
	require.Equal(t, "locked", *u.LockoutReason)

	require.NoError(t, s.UpdateUser(ctx, "1", authcore.ClearLockout()))
	u, err = s.FindUserByID(ctx, "1")
	require.NoError(t, err)
	require.Zero(t, u.LoginAttempts)
	require.Nil(t, u.LockoutUntil)
	require.Nil(t, u.LockoutReason)

	require.ErrorIs(t, s.UpdateUser(ctx, "missing", authcore.ClearLockout()), authcore.ErrNotFound)
}

func TestVerificationReplaceAndPurge(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateEmailVerification(ctx, authcore.EmailVerification{Email: "a@x.com", UserID: "1", OTP: "111111", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.CreateEmailVerification(ctx, authcore.EmailVerification{Email: "a@x.com", UserID: "1", OTP: "222222", ExpiresAt: now.Add(time.Minute)}))

	_, err := s.FindActiveEmailVerification(ctx, "a@x.com", "111111", now)
	require.ErrorIs(t, err, authcore.ErrNotFound)

	v, err := s.FindActiveEmailVerification(ctx, "A@x.com", "222222", now)
	require.NoError(t, err)
	require.Equal(t, "1", v.UserID)

	_, err = s.FindActiveEmailVerification(ctx, "a@x.com", "222222", now.Add(2*time.Minute))
	require.ErrorIs(t, err, authcore.ErrNotFound)

	require.NoError(t, s.CreatePasswordResetToken(ctx, authcore.PasswordResetToken{Email: "a@x.com", UserID: "1", Token: "t", ExpiresAt: now.Add(-time.Second)}))
	n, err := s.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, s.DeleteEmailVerification(ctx, "a@x.com", "1"))
	require.NoError(t, s.DeleteEmailVerification(ctx, "a@x.com", "1"))
}
