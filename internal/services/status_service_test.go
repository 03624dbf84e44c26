package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

func newStatusService(t *testing.T, db *gorm.DB) *StatusService {
	t.Helper()
	svc, err := NewStatusService(db, mustAudit(t, db))
	require.NoError(t, err)
	return svc
}

func countDefaults(t *testing.T, db *gorm.DB, orgID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Status{}).
		Where("organization_id = ? AND is_default = ?", orgID, true).
		Count(&n).Error)
	return n
}

func TestStatusCreateAsDefaultDemotesPrevious(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newStatusService(t, db)

	created, err := svc.Create(context.Background(), org.ID, CreateStatusInput{
		Name:      "Under Review",
		Category:  models.StatusCategoryOpen,
		IsDefault: true,
	})
	require.NoError(t, err)
	require.True(t, created.IsDefault)
	require.EqualValues(t, 1, countDefaults(t, db, org.ID))

	current, err := svc.Default(context.Background(), org.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, current.ID)
}

func TestStatusPromoteViaUpdate(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newStatusService(t, db)

	var planned models.Status
	require.NoError(t, db.First(&planned, "organization_id = ? AND slug = ?", org.ID, "planned").Error)

	promote := true
	updated, err := svc.Update(context.Background(), org.ID, planned.ID, UpdateStatusInput{IsDefault: &promote})
	require.NoError(t, err)
	require.True(t, updated.IsDefault)
	require.EqualValues(t, 1, countDefaults(t, db, org.ID))
}

func TestStatusDemoteOnlyDefaultRejected(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newStatusService(t, db)

	current := defaultStatus(t, db, org.ID)
	demote := false
	_, err := svc.Update(context.Background(), org.ID, current.ID, UpdateStatusInput{IsDefault: &demote})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "status.default_required", appErr.Code)
}

func TestStatusCreateRejectsUnknownCategory(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newStatusService(t, db)

	_, err := svc.Create(context.Background(), org.ID, CreateStatusInput{
		Name:     "Weird",
		Category: "someday",
	})
	require.Error(t, err)
}

func TestStatusDeleteGuards(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	svc := newStatusService(t, db)

	// The default cannot be deleted.
	current := defaultStatus(t, db, org.ID)
	err := svc.Delete(context.Background(), org.ID, current.ID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "status.default_required", appErr.Code)

	// A status still used by posts cannot be deleted.
	var planned models.Status
	require.NoError(t, db.First(&planned, "organization_id = ? AND slug = ?", org.ID, "planned").Error)
	post := &models.Post{
		OrganizationID: org.ID,
		BoardID:        board.ID,
		AuthorID:       user.ID,
		Title:          "Roadmap item",
		StatusID:       planned.ID,
	}
	require.NoError(t, db.Create(post).Error)

	err = svc.Delete(context.Background(), org.ID, planned.ID)
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "status.in_use", appErr.Code)

	require.NoError(t, db.Delete(post).Error)
	require.NoError(t, svc.Delete(context.Background(), org.ID, planned.ID))
	_, err = svc.GetByID(context.Background(), org.ID, planned.ID)
	require.ErrorIs(t, err, ErrStatusNotFound)
}

func TestStatusListOrdering(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newStatusService(t, db)

	statuses, err := svc.List(context.Background(), org.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 5)
	require.Equal(t, "open", statuses[0].Slug)
	require.Equal(t, "closed", statuses[4].Slug)
}
