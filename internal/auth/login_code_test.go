package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/quackback/quackback/internal/database/testutil"
	"github.com/quackback/quackback/internal/models"
)

func TestLoginCodeIssueAndVerify(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewLoginCodeService(db, LoginCodeConfig{MaxAttempts: 3, Clock: clock})
	require.NoError(t, err)

	ctx := context.Background()

	code, record, err := svc.Issue(ctx, "Visitor@Example.com")
	require.NoError(t, err)
	require.Len(t, code, DefaultLoginCodeDigits)
	require.Equal(t, "visitor@example.com", record.Email)
	require.NotEqual(t, code, record.CodeHash)

	user, err := svc.Verify(ctx, "visitor@example.com", code)
	require.NoError(t, err)
	require.Equal(t, "visitor@example.com", user.Email)
	require.True(t, user.IsActive)
	require.Empty(t, user.Password)

	// A consumed code cannot be replayed.
	_, err = svc.Verify(ctx, "visitor@example.com", code)
	require.ErrorIs(t, err, ErrLoginCodeInvalid)
}

func TestLoginCodeIssueInvalidatesPrevious(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewLoginCodeService(db, LoginCodeConfig{})
	require.NoError(t, err)

	ctx := context.Background()

	first, _, err := svc.Issue(ctx, "visitor@example.com")
	require.NoError(t, err)

	second, _, err := svc.Issue(ctx, "visitor@example.com")
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.LoginCode{}).
		Where("email = ?", "visitor@example.com").Count(&count).Error)
	require.Equal(t, int64(1), count)

	if first != second {
		_, err = svc.Verify(ctx, "visitor@example.com", first)
		require.ErrorIs(t, err, ErrLoginCodeInvalid)
	}

	_, err = svc.Verify(ctx, "visitor@example.com", second)
	require.NoError(t, err)
}

func TestLoginCodeExpired(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewLoginCodeService(db, LoginCodeConfig{Clock: clock})
	require.NoError(t, err)

	ctx := context.Background()
	code, _, err := svc.Issue(ctx, "visitor@example.com")
	require.NoError(t, err)

	current = current.Add(DefaultLoginCodeTTL + time.Minute)
	_, err = svc.Verify(ctx, "visitor@example.com", code)
	require.ErrorIs(t, err, ErrLoginCodeExpired)
}

func TestLoginCodeAttemptLimit(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewLoginCodeService(db, LoginCodeConfig{MaxAttempts: 2})
	require.NoError(t, err)

	ctx := context.Background()
	code, _, err := svc.Issue(ctx, "visitor@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err = svc.Verify(ctx, "visitor@example.com", wrong)
	require.ErrorIs(t, err, ErrLoginCodeInvalid)

	_, err = svc.Verify(ctx, "visitor@example.com", wrong)
	require.ErrorIs(t, err, ErrLoginCodeAttempts)

	// Even the right code is refused once the limit is hit.
	_, err = svc.Verify(ctx, "visitor@example.com", code)
	require.ErrorIs(t, err, ErrLoginCodeAttempts)
}

func TestLoginCodeExistingUser(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.NoError(t, db.Create(&models.User{Email: "visitor@example.com", Name: "Vi", IsActive: true}).Error)

	svc, err := NewLoginCodeService(db, LoginCodeConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	code, _, err := svc.Issue(ctx, "visitor@example.com")
	require.NoError(t, err)

	user, err := svc.Verify(ctx, "visitor@example.com", code)
	require.NoError(t, err)
	require.Equal(t, "Vi", user.Name)
	require.NotNil(t, user.LastLoginAt)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestLoginCodeDisabledUser(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.NoError(t, db.Create(&models.User{Email: "visitor@example.com", IsActive: false}).Error)

	svc, err := NewLoginCodeService(db, LoginCodeConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	code, _, err := svc.Issue(ctx, "visitor@example.com")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "visitor@example.com", code)
	require.ErrorIs(t, err, ErrAccountDisabled)
}
