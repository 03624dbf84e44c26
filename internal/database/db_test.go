package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quackback/quackback/internal/models"
)

func TestOpenSQLiteInMemory(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// schema is usable after migration
	org := models.Organization{Name: "Acme", Slug: "acme"}
	require.NoError(t, db.Create(&org).Error)
	require.NotEmpty(t, org.ID)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestSeedOrganizationDefaults(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	org := models.Organization{Name: "Acme", Slug: "acme-defaults"}
	require.NoError(t, db.Create(&org).Error)

	require.NoError(t, SeedOrganizationDefaults(db, org.ID))
	// idempotent
	require.NoError(t, SeedOrganizationDefaults(db, org.ID))

	var statuses []models.Status
	require.NoError(t, db.Where("organization_id = ?", org.ID).Order("position ASC").Find(&statuses).Error)
	require.Len(t, statuses, 5)
	require.Equal(t, "open", statuses[0].Slug)
	require.True(t, statuses[0].IsDefault)

	defaults := 0
	for _, s := range statuses {
		if s.IsDefault {
			defaults++
		}
	}
	require.Equal(t, 1, defaults)
}

func TestSystemSettingsRoundTrip(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	ctx := context.Background()

	value, err := GetSystemSetting(ctx, db, SetupCompletedSetting)
	require.NoError(t, err)
	require.Empty(t, value)

	require.NoError(t, UpsertSystemSetting(ctx, db, SetupCompletedSetting, "true"))
	require.NoError(t, UpsertSystemSetting(ctx, db, SetupCompletedSetting, "true"))

	value, err = GetSystemSetting(ctx, db, SetupCompletedSetting)
	require.NoError(t, err)
	require.Equal(t, "true", value)
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		Driver:   "postgres",
		Host:     "db.internal",
		Port:     5433,
		Name:     "quackback",
		User:     "quackback",
		Password: "s3cret",
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db.internal")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{Driver: "postgres"})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		Driver:   "mysql",
		Name:     "quackback",
		User:     "root",
		Password: "root",
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "root:root@tcp(127.0.0.1:3306)/quackback")
	require.Contains(t, dsn, "parseTime=True")
}
