package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
)

func newRoadmapService(t *testing.T, db *gorm.DB) *RoadmapService {
	t.Helper()
	svc, err := NewRoadmapService(db, mustAudit(t, db))
	require.NoError(t, err)
	return svc
}

func statusBySlug(t *testing.T, db *gorm.DB, orgID, slug string) *models.Status {
	t.Helper()
	var status models.Status
	require.NoError(t, db.First(&status, "organization_id = ? AND slug = ?", orgID, slug).Error)
	return &status
}

func TestRoadmapCreateValidatesStatuses(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newRoadmapService(t, db)

	planned := statusBySlug(t, db, org.ID, "planned")

	roadmap, err := svc.Create(context.Background(), org.ID, CreateRoadmapInput{
		Name:      "Public Roadmap",
		Public:    true,
		StatusIDs: []string{planned.ID},
	})
	require.NoError(t, err)
	require.Equal(t, "public-roadmap", roadmap.Slug)

	_, err = svc.Create(context.Background(), org.ID, CreateRoadmapInput{
		Name:      "Broken",
		StatusIDs: []string{"00000000-0000-0000-0000-000000000000"},
	})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), org.ID, CreateRoadmapInput{
		Name:      "Empty",
		StatusIDs: []string{" "},
	})
	require.Error(t, err)
}

func TestRoadmapListPublicOnly(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newRoadmapService(t, db)

	planned := statusBySlug(t, db, org.ID, "planned")
	_, err := svc.Create(context.Background(), org.ID, CreateRoadmapInput{
		Name: "Public Roadmap", Public: true, StatusIDs: []string{planned.ID},
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), org.ID, CreateRoadmapInput{
		Name: "Internal Planning", StatusIDs: []string{planned.ID},
	})
	require.NoError(t, err)

	portal, err := svc.List(context.Background(), org.ID, true)
	require.NoError(t, err)
	require.Len(t, portal, 1)
	require.Equal(t, "public-roadmap", portal[0].Slug)

	admin, err := svc.List(context.Background(), org.ID, false)
	require.NoError(t, err)
	require.Len(t, admin, 2)
}

func TestRoadmapColumnsOrderedByVotes(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	svc := newRoadmapService(t, db)

	planned := statusBySlug(t, db, org.ID, "planned")
	inProgress := statusBySlug(t, db, org.ID, "in-progress")

	low := seedPost(t, db, org.ID, board.ID, user.ID, "Low votes")
	high := seedPost(t, db, org.ID, board.ID, user.ID, "High votes")
	require.NoError(t, db.Model(low).Updates(map[string]any{"status_id": planned.ID, "vote_count": 1}).Error)
	require.NoError(t, db.Model(high).Updates(map[string]any{"status_id": planned.ID, "vote_count": 9}).Error)

	roadmap, err := svc.Create(context.Background(), org.ID, CreateRoadmapInput{
		Name:      "Delivery",
		StatusIDs: []string{planned.ID, inProgress.ID},
	})
	require.NoError(t, err)

	columns, err := svc.Columns(context.Background(), org.ID, roadmap.ID)
	require.NoError(t, err)
	require.Len(t, columns, 2)
	require.Equal(t, planned.ID, columns[0].Status.ID)
	require.Len(t, columns[0].Posts, 2)
	require.Equal(t, "High votes", columns[0].Posts[0].Title)
	require.Empty(t, columns[1].Posts)
}

func TestRoadmapColumnsSkipDeletedStatus(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newRoadmapService(t, db)

	planned := statusBySlug(t, db, org.ID, "planned")
	done := statusBySlug(t, db, org.ID, "done")

	roadmap, err := svc.Create(context.Background(), org.ID, CreateRoadmapInput{
		Name:      "Delivery",
		StatusIDs: []string{planned.ID, done.ID},
	})
	require.NoError(t, err)

	require.NoError(t, db.Delete(done).Error)

	columns, err := svc.Columns(context.Background(), org.ID, roadmap.ID)
	require.NoError(t, err)
	require.Len(t, columns, 1)
	require.Equal(t, planned.ID, columns[0].Status.ID)
}

func TestRoadmapUpdateReplacesColumns(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc := newRoadmapService(t, db)

	planned := statusBySlug(t, db, org.ID, "planned")
	done := statusBySlug(t, db, org.ID, "done")

	roadmap, err := svc.Create(context.Background(), org.ID, CreateRoadmapInput{
		Name:      "Delivery",
		StatusIDs: []string{planned.ID},
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), org.ID, roadmap.ID, UpdateRoadmapInput{
		StatusIDs: []string{done.ID, planned.ID},
	})
	require.NoError(t, err)

	columns, err := svc.Columns(context.Background(), org.ID, updated.ID)
	require.NoError(t, err)
	require.Len(t, columns, 2)
	require.Equal(t, done.ID, columns[0].Status.ID)
}
