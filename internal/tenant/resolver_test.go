package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	qcache "github.com/quackback/quackback/internal/cache"
	"github.com/quackback/quackback/internal/database"
	testutil "github.com/quackback/quackback/internal/database/testutil"
	"github.com/quackback/quackback/internal/models"
)

func createOrg(t *testing.T, db *gorm.DB, name, slug string) *models.Organization {
	t.Helper()
	org := &models.Organization{Name: name, Slug: slug}
	require.NoError(t, db.Create(org).Error)
	return org
}

func TestResolveBySubdomain(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	org := createOrg(t, db, "Acme", "acme")

	resolver, err := NewResolver(db, nil, Config{BaseDomain: "feedback.example"})
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), "acme.feedback.example", "/")
	require.NoError(t, err)
	require.Equal(t, org.ID, res.Organization.ID)
	require.Equal(t, "subdomain", res.Mode)

	// Ports and case do not affect resolution.
	res, err = resolver.Resolve(context.Background(), "ACME.Feedback.Example:8443", "/")
	require.NoError(t, err)
	require.Equal(t, org.ID, res.Organization.ID)
}

func TestResolveUnknownSubdomain(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	createOrg(t, db, "Acme", "acme")

	resolver, err := NewResolver(db, nil, Config{BaseDomain: "feedback.example"})
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "ghost.feedback.example", "/")
	require.ErrorIs(t, err, ErrTenantNotFound)

	// Nested subdomains are not slugs.
	_, err = resolver.Resolve(context.Background(), "a.b.feedback.example", "/")
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveByCustomDomain(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	org := createOrg(t, db, "Acme", "acme")

	verifiedAt := time.Now()
	require.NoError(t, db.Create(&models.CustomDomain{
		OrganizationID:    org.ID,
		Hostname:          "ideas.acme.com",
		VerificationToken: "token",
		VerifiedAt:        &verifiedAt,
	}).Error)

	resolver, err := NewResolver(db, nil, Config{BaseDomain: "feedback.example"})
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), "ideas.acme.com", "/")
	require.NoError(t, err)
	require.Equal(t, org.ID, res.Organization.ID)
	require.Equal(t, "custom_domain", res.Mode)
}

func TestResolveIgnoresUnverifiedDomain(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	org := createOrg(t, db, "Acme", "acme")

	require.NoError(t, db.Create(&models.CustomDomain{
		OrganizationID:    org.ID,
		Hostname:          "ideas.acme.com",
		VerificationToken: "token",
	}).Error)

	resolver, err := NewResolver(db, nil, Config{})
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "ideas.acme.com", "/")
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveByPathSlug(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	org := createOrg(t, db, "Acme", "acme")

	resolver, err := NewResolver(db, nil, Config{PathPrefix: "/org"})
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), "app.example.com", "/org/acme/posts")
	require.NoError(t, err)
	require.Equal(t, org.ID, res.Organization.ID)
	require.Equal(t, "path", res.Mode)
	require.Equal(t, "acme", res.PathSlug)

	_, err = resolver.Resolve(context.Background(), "app.example.com", "/org/nope")
	require.ErrorIs(t, err, ErrTenantNotFound)

	_, err = resolver.Resolve(context.Background(), "app.example.com", "/other/acme")
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveSingleTenant(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	org := createOrg(t, db, "Acme", "acme")

	resolver, err := NewResolver(db, nil, Config{SingleTenant: true})
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), "anything.example.com", "/")
	require.NoError(t, err)
	require.Equal(t, org.ID, res.Organization.ID)
	require.Equal(t, "single_tenant", res.Mode)
}

func TestResolveSingleTenantPinnedOrg(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	createOrg(t, db, "First", "first")
	second := createOrg(t, db, "Second", "second")

	ctx := context.Background()
	require.NoError(t, database.UpsertSystemSetting(ctx, db, database.SingleTenantOrgSetting, second.ID))

	resolver, err := NewResolver(db, nil, Config{SingleTenant: true})
	require.NoError(t, err)

	res, err := resolver.Resolve(ctx, "anything.example.com", "/")
	require.NoError(t, err)
	require.Equal(t, second.ID, res.Organization.ID)
}

func TestResolveCustomDomainUsesCache(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	org := createOrg(t, db, "Acme", "acme")

	verifiedAt := time.Now()
	require.NoError(t, db.Create(&models.CustomDomain{
		OrganizationID:    org.ID,
		Hostname:          "ideas.acme.com",
		VerificationToken: "token",
		VerifiedAt:        &verifiedAt,
	}).Error)

	store := qcache.NewDatabaseStore(db)
	resolver, err := NewResolver(db, store, Config{})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = resolver.Resolve(ctx, "ideas.acme.com", "/")
	require.NoError(t, err)

	value, found, err := store.Get(ctx, "tenant:host:ideas.acme.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, org.ID, string(value))

	// Removing the domain row while cached still resolves until invalidated.
	require.NoError(t, db.Where("hostname = ?", "ideas.acme.com").Delete(&models.CustomDomain{}).Error)
	res, err := resolver.Resolve(ctx, "ideas.acme.com", "/")
	require.NoError(t, err)
	require.Equal(t, org.ID, res.Organization.ID)

	resolver.Invalidate(ctx, "ideas.acme.com")
	_, err = resolver.Resolve(ctx, "ideas.acme.com", "/")
	require.ErrorIs(t, err, ErrTenantNotFound)
}
