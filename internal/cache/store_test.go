package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
)

func setupCacheDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CacheEntry{}))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
	})
	return db
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store := NewDatabaseStore(setupCacheDB(t))
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rate:test", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Greater(t, ttl, time.Duration(0))

	count, _, err = store.IncrementWithTTL(ctx, "rate:test", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	count, _, err = store.IncrementWithTTL(ctx, "rate:other", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store := NewDatabaseStore(setupCacheDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "tenant:acme", []byte("org-id"), time.Minute))

	value, found, err := store.Get(ctx, "tenant:acme")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("org-id"), value)

	// Overwrite replaces the stored value.
	require.NoError(t, store.Set(ctx, "tenant:acme", []byte("other-id"), time.Minute))
	value, found, err = store.Get(ctx, "tenant:acme")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("other-id"), value)

	require.NoError(t, store.Delete(ctx, "tenant:acme"))
	_, found, err = store.Get(ctx, "tenant:acme")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreGetExpired(t *testing.T) {
	store := NewDatabaseStore(setupCacheDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("v"), -time.Second))

	_, found, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreZeroTTLNeverExpires(t *testing.T) {
	store := NewDatabaseStore(setupCacheDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "pinned", []byte("v"), 0))

	value, found, err := store.Get(ctx, "pinned")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v"), value)
}

func TestDatabaseStoreGetMissing(t *testing.T) {
	store := NewDatabaseStore(setupCacheDB(t))

	_, found, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, found)
}
