package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

func TestTagCreateAndDuplicate(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc, err := NewTagService(db, mustAudit(t, db))
	require.NoError(t, err)

	tag, err := svc.Create(context.Background(), org.ID, CreateTagInput{Name: "Mobile App"})
	require.NoError(t, err)
	require.Equal(t, "mobile-app", tag.Slug)

	_, err = svc.Create(context.Background(), org.ID, CreateTagInput{Name: "Mobile App"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "tag.slug_taken", appErr.Code)
}

func TestTagUpdate(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	svc, err := NewTagService(db, mustAudit(t, db))
	require.NoError(t, err)

	tag, err := svc.Create(context.Background(), org.ID, CreateTagInput{Name: "UX", Color: "#ff0000"})
	require.NoError(t, err)

	color := "#00ff00"
	updated, err := svc.Update(context.Background(), org.ID, tag.ID, UpdateTagInput{Color: &color})
	require.NoError(t, err)
	require.Equal(t, "#00ff00", updated.Color)
	require.Equal(t, "ux", updated.Slug)
}

func TestTagDeleteDetachesPosts(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	svc, err := NewTagService(db, mustAudit(t, db))
	require.NoError(t, err)

	tag, err := svc.Create(context.Background(), org.ID, CreateTagInput{Name: "UX"})
	require.NoError(t, err)

	post := seedPost(t, db, org.ID, board.ID, user.ID, "Tagged post")
	require.NoError(t, db.Model(post).Association("Tags").Append(tag))

	require.NoError(t, svc.Delete(context.Background(), org.ID, tag.ID))

	var links int64
	require.NoError(t, db.Table("post_tags").Where("post_id = ?", post.ID).Count(&links).Error)
	require.Zero(t, links)

	var fetched models.Post
	require.NoError(t, db.Preload("Tags").First(&fetched, "id = ?", post.ID).Error)
	require.Empty(t, fetched.Tags)
}

func TestTagScopedToOrg(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	other := seedOrg(t, db, "Globex")
	svc, err := NewTagService(db, mustAudit(t, db))
	require.NoError(t, err)

	tag, err := svc.Create(context.Background(), org.ID, CreateTagInput{Name: "UX"})
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), other.ID, tag.ID)
	require.ErrorIs(t, err, ErrTagNotFound)

	// Same slug in another org is allowed.
	_, err = svc.Create(context.Background(), other.ID, CreateTagInput{Name: "UX"})
	require.NoError(t, err)
}
