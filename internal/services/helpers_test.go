package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/database"
	"github.com/quackback/quackback/internal/database/testutil"
	"github.com/quackback/quackback/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func seedOrg(t *testing.T, db *gorm.DB, name string) *models.Organization {
	t.Helper()

	org := &models.Organization{Name: name, Slug: slugify(name)}
	require.NoError(t, db.Create(org).Error)
	require.NoError(t, database.SeedOrganizationDefaults(db, org.ID))
	return org
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{Email: email, Name: "Test User", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedBoard(t *testing.T, db *gorm.DB, orgID, name string) *models.Board {
	t.Helper()

	board := &models.Board{OrganizationID: orgID, Name: name, Slug: slugify(name)}
	require.NoError(t, db.Create(board).Error)
	return board
}

func defaultStatus(t *testing.T, db *gorm.DB, orgID string) *models.Status {
	t.Helper()

	var status models.Status
	require.NoError(t, db.First(&status, "organization_id = ? AND is_default = ?", orgID, true).Error)
	return &status
}

func mustAudit(t *testing.T, db *gorm.DB) *AuditService {
	t.Helper()

	audit, err := NewAuditService(db)
	require.NoError(t, err)
	return audit
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Feature Requests":  "feature-requests",
		"  Bugs & Issues  ": "bugs-issues",
		"API":               "api",
		"---":               "",
	}
	for input, want := range cases {
		require.Equal(t, want, slugify(input), "slugify(%q)", input)
	}
}

func TestNormaliseIDs(t *testing.T) {
	got := normaliseIDs([]string{" a ", "b", "a", "", "c"})
	require.Equal(t, []string{"a", "b", "c"}, got)
}
