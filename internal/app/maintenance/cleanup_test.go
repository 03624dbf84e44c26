package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/quackback/quackback/internal/database/testutil"
	"github.com/quackback/quackback/internal/models"
)

func TestCleanupTokens(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

	expiredCode := models.LoginCode{
		Email:     "expired@example.com",
		CodeHash:  "hash-expired",
		ExpiresAt: now.Add(-time.Hour),
	}
	activeCode := models.LoginCode{
		Email:     "active@example.com",
		CodeHash:  "hash-active",
		ExpiresAt: now.Add(time.Hour),
	}
	consumedAt := now.Add(-time.Minute)
	consumedCode := models.LoginCode{
		Email:      "consumed@example.com",
		CodeHash:   "hash-consumed",
		ExpiresAt:  now.Add(time.Hour),
		ConsumedAt: &consumedAt,
	}
	require.NoError(t, db.Create(&expiredCode).Error)
	require.NoError(t, db.Create(&activeCode).Error)
	require.NoError(t, db.Create(&consumedCode).Error)

	org := models.Organization{Name: "Acme", Slug: "acme"}
	require.NoError(t, db.Create(&org).Error)

	expiredInvite := models.Invitation{
		OrganizationID: org.ID,
		Email:          "expired@example.com",
		TokenHash:      "invite-expired",
		ExpiresAt:      now.Add(-time.Hour),
	}
	activeInvite := models.Invitation{
		OrganizationID: org.ID,
		Email:          "active@example.com",
		TokenHash:      "invite-active",
		ExpiresAt:      now.Add(time.Hour),
	}
	require.NoError(t, db.Create(&expiredInvite).Error)
	require.NoError(t, db.Create(&activeInvite).Error)

	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "stale",
		Value:     []byte("v"),
		ExpiresAt: now.Add(-time.Minute),
	}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{
		Key:       "fresh",
		Value:     []byte("v"),
		ExpiresAt: now.Add(time.Minute),
	}).Error)

	stats, err := CleanupTokens(context.Background(), db, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.LoginCodes)
	require.Equal(t, int64(1), stats.Invitations)
	require.Equal(t, int64(1), stats.CacheEntries)

	var remainingCodes []models.LoginCode
	require.NoError(t, db.Find(&remainingCodes).Error)
	require.Len(t, remainingCodes, 1)
	require.Equal(t, "active@example.com", remainingCodes[0].Email)

	var remainingInvites []models.Invitation
	require.NoError(t, db.Find(&remainingInvites).Error)
	require.Len(t, remainingInvites, 1)
	require.Equal(t, "invite-active", remainingInvites[0].TokenHash)
}

func TestCleanupTokensNilDB(t *testing.T) {
	_, err := CleanupTokens(context.Background(), nil, time.Now())
	require.Error(t, err)
}

func TestCleanerRunOnceTokensOnly(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.LoginCode{
		Email:     "old@example.com",
		CodeHash:  "old",
		ExpiresAt: now.Add(-time.Hour),
	}).Error)

	cleaner := NewCleaner(db, nil, nil, WithNow(func() time.Time { return now }))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.LoginCode{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCleanerStartStop(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	cleaner := NewCleaner(db, nil, nil, WithTokenSchedule("@every 1h"))
	require.NoError(t, cleaner.Start())

	ctx := cleaner.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}
