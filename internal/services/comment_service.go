package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

// Sentinel errors for comment operations.
var (
	ErrCommentNotFound = errors.New("comment service: comment not found")
)

// CommentService manages threaded comments and emoji reactions on posts.
type CommentService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewCommentService constructs a CommentService.
func NewCommentService(db *gorm.DB, audit *AuditService) (*CommentService, error) {
	if db == nil {
		return nil, errors.New("comment service: db is required")
	}
	return &CommentService{db: db, audit: audit}, nil
}

// CreateCommentInput carries fields for a new comment.
type CreateCommentInput struct {
	PostID   string `validate:"required,uuid"`
	AuthorID string `validate:"required,uuid"`
	ParentID string `validate:"omitempty,uuid"`
	Body     string `validate:"required,min=1,max=5000"`
	Internal bool
}

// Create adds a comment to a post. Threading is capped at one level: replying
// to a reply is rejected with comment.too_deep.
func (s *CommentService) Create(ctx context.Context, orgID string, input CreateCommentInput) (*models.Comment, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND organization_id = ?", input.PostID, orgID).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("comment service: check post: %w", err)
	}
	if count == 0 {
		return nil, ErrPostNotFound
	}

	comment := &models.Comment{
		PostID:   input.PostID,
		AuthorID: input.AuthorID,
		Body:     strings.TrimSpace(input.Body),
		Internal: input.Internal,
	}

	if input.ParentID != "" {
		var parent models.Comment
		err := s.db.WithContext(ctx).
			First(&parent, "id = ? AND post_id = ?", input.ParentID, input.PostID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("comment service: load parent: %w", err)
		}
		if parent.ParentID != nil {
			return nil, apperrors.New("comment.too_deep", "Replies cannot be nested deeper than one level", http.StatusBadRequest)
		}
		comment.ParentID = &parent.ID
	}

	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, fmt.Errorf("comment service: create comment: %w", err)
	}
	return comment, nil
}

// GetByID fetches one comment, verifying it belongs to the organization.
func (s *CommentService) GetByID(ctx context.Context, orgID, commentID string) (*models.Comment, error) {
	ctx = ensureContext(ctx)

	var comment models.Comment
	err := s.db.WithContext(ctx).
		Joins("JOIN posts ON posts.id = comments.post_id").
		Where("comments.id = ? AND posts.organization_id = ?", commentID, orgID).
		First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("comment service: get comment: %w", err)
	}
	return &comment, nil
}

// ListByPost returns a post's top-level comments with replies and reactions,
// oldest first. Internal comments are filtered out unless includeInternal.
func (s *CommentService) ListByPost(ctx context.Context, orgID, postID string, includeInternal bool) ([]models.Comment, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND organization_id = ?", postID, orgID).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("comment service: check post: %w", err)
	}
	if count == 0 {
		return nil, ErrPostNotFound
	}

	query := s.db.WithContext(ctx).
		Where("post_id = ? AND parent_id IS NULL", postID)
	replyQuery := func(db *gorm.DB) *gorm.DB {
		if !includeInternal {
			db = db.Where("internal = ?", false)
		}
		return db.Order("created_at ASC")
	}
	if !includeInternal {
		query = query.Where("internal = ?", false)
	}

	var comments []models.Comment
	err = query.
		Preload("Author").
		Preload("Reactions").
		Preload("Replies", replyQuery).
		Preload("Replies.Author").
		Preload("Replies.Reactions").
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("comment service: list comments: %w", err)
	}
	return comments, nil
}

// UpdateBody edits a comment's body. Authorization (author or member) is
// enforced by the caller.
func (s *CommentService) UpdateBody(ctx context.Context, orgID, commentID, body string) (*models.Comment, error) {
	ctx = ensureContext(ctx)

	comment, err := s.GetByID(ctx, orgID, commentID)
	if err != nil {
		return nil, err
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewBadRequest("Comment body cannot be empty")
	}

	if err := s.db.WithContext(ctx).Model(comment).Update("body", body).Error; err != nil {
		return nil, fmt.Errorf("comment service: update comment: %w", err)
	}
	comment.Body = body
	return comment, nil
}

// Delete removes a comment along with its replies and reactions.
func (s *CommentService) Delete(ctx context.Context, orgID, commentID string) error {
	ctx = ensureContext(ctx)

	comment, err := s.GetByID(ctx, orgID, commentID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			"DELETE FROM reactions WHERE comment_id = ? OR comment_id IN (SELECT id FROM comments WHERE parent_id = ?)",
			commentID, commentID,
		).Error; err != nil {
			return fmt.Errorf("delete reactions: %w", err)
		}
		if err := tx.Where("parent_id = ?", commentID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete replies: %w", err)
		}
		return tx.Delete(comment).Error
	})
	if err != nil {
		return fmt.Errorf("comment service: delete comment: %w", err)
	}
	return nil
}

// ToggleReaction adds the user's emoji reaction, or removes it when already
// present. Returns true when the reaction now exists.
func (s *CommentService) ToggleReaction(ctx context.Context, orgID, commentID, userID, emoji string) (bool, error) {
	ctx = ensureContext(ctx)

	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return false, apperrors.NewBadRequest("Emoji cannot be empty")
	}

	if _, err := s.GetByID(ctx, orgID, commentID); err != nil {
		return false, err
	}

	added := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("comment_id = ? AND user_id = ? AND emoji = ?", commentID, userID, emoji).
			Delete(&models.Reaction{})
		if result.Error != nil {
			return fmt.Errorf("remove reaction: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
		added = true
		reaction := &models.Reaction{CommentID: commentID, UserID: userID, Emoji: emoji}
		if err := tx.Create(reaction).Error; err != nil {
			return fmt.Errorf("add reaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("comment service: toggle reaction: %w", err)
	}
	return added, nil
}
