package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

func seedPost(t *testing.T, db *gorm.DB, orgID, boardID, authorID, title string) *models.Post {
	t.Helper()

	status := defaultStatus(t, db, orgID)
	post := &models.Post{
		OrganizationID: orgID,
		BoardID:        boardID,
		AuthorID:       authorID,
		Title:          title,
		StatusID:       status.ID,
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func newCommentService(t *testing.T, db *gorm.DB) *CommentService {
	t.Helper()
	svc, err := NewCommentService(db, mustAudit(t, db))
	require.NoError(t, err)
	return svc
}

func TestCommentThreadingDepthLimit(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	post := seedPost(t, db, org.ID, board.ID, user.ID, "Dark mode")
	svc := newCommentService(t, db)

	top, err := svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID:   post.ID,
		AuthorID: user.ID,
		Body:     "Great idea",
	})
	require.NoError(t, err)

	reply, err := svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID:   post.ID,
		AuthorID: user.ID,
		ParentID: top.ID,
		Body:     "Agreed",
	})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)

	_, err = svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID:   post.ID,
		AuthorID: user.ID,
		ParentID: reply.ID,
		Body:     "Too deep",
	})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "comment.too_deep", appErr.Code)
}

func TestCommentListFiltersInternal(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	post := seedPost(t, db, org.ID, board.ID, user.ID, "Dark mode")
	svc := newCommentService(t, db)

	_, err := svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID: post.ID, AuthorID: user.ID, Body: "Public note",
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID: post.ID, AuthorID: user.ID, Body: "Triage note", Internal: true,
	})
	require.NoError(t, err)

	publicView, err := svc.ListByPost(context.Background(), org.ID, post.ID, false)
	require.NoError(t, err)
	require.Len(t, publicView, 1)
	require.Equal(t, "Public note", publicView[0].Body)

	memberView, err := svc.ListByPost(context.Background(), org.ID, post.ID, true)
	require.NoError(t, err)
	require.Len(t, memberView, 2)
}

func TestCommentReactionToggle(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	post := seedPost(t, db, org.ID, board.ID, user.ID, "Dark mode")
	svc := newCommentService(t, db)

	comment, err := svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID: post.ID, AuthorID: user.ID, Body: "Love it",
	})
	require.NoError(t, err)

	added, err := svc.ToggleReaction(context.Background(), org.ID, comment.ID, user.ID, "👍")
	require.NoError(t, err)
	require.True(t, added)

	// Same emoji again removes it; a different emoji coexists.
	added, err = svc.ToggleReaction(context.Background(), org.ID, comment.ID, user.ID, "👍")
	require.NoError(t, err)
	require.False(t, added)

	added, err = svc.ToggleReaction(context.Background(), org.ID, comment.ID, user.ID, "🎉")
	require.NoError(t, err)
	require.True(t, added)

	var reactions int64
	require.NoError(t, db.Model(&models.Reaction{}).Where("comment_id = ?", comment.ID).Count(&reactions).Error)
	require.EqualValues(t, 1, reactions)
}

func TestCommentDeleteRemovesReplies(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	post := seedPost(t, db, org.ID, board.ID, user.ID, "Dark mode")
	svc := newCommentService(t, db)

	top, err := svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID: post.ID, AuthorID: user.ID, Body: "Thread root",
	})
	require.NoError(t, err)
	reply, err := svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID: post.ID, AuthorID: user.ID, ParentID: top.ID, Body: "A reply",
	})
	require.NoError(t, err)
	_, err = svc.ToggleReaction(context.Background(), org.ID, reply.ID, user.ID, "👍")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), org.ID, top.ID))

	var comments, reactions int64
	require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&comments).Error)
	require.NoError(t, db.Model(&models.Reaction{}).Count(&reactions).Error)
	require.Zero(t, comments)
	require.Zero(t, reactions)
}

func TestCommentUpdateBody(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	post := seedPost(t, db, org.ID, board.ID, user.ID, "Dark mode")
	svc := newCommentService(t, db)

	comment, err := svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID: post.ID, AuthorID: user.ID, Body: "Typo here",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateBody(context.Background(), org.ID, comment.ID, "Typo fixed")
	require.NoError(t, err)
	require.Equal(t, "Typo fixed", updated.Body)

	_, err = svc.UpdateBody(context.Background(), org.ID, comment.ID, "   ")
	require.Error(t, err)
}

func TestCommentScopedToOrg(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	other := seedOrg(t, db, "Globex")
	board := seedBoard(t, db, org.ID, "Ideas")
	user := seedUser(t, db, "author@example.com")
	post := seedPost(t, db, org.ID, board.ID, user.ID, "Dark mode")
	svc := newCommentService(t, db)

	comment, err := svc.Create(context.Background(), org.ID, CreateCommentInput{
		PostID: post.ID, AuthorID: user.ID, Body: "Scoped",
	})
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), other.ID, comment.ID)
	require.ErrorIs(t, err, ErrCommentNotFound)
}
