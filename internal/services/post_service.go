package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/metrics"
)

// Sentinel errors for post operations.
var (
	ErrPostNotFound = errors.New("post service: post not found")
)

// EventEmitter receives domain events (post created, status changed) for
// fan-out to webhooks and the live activity feed. Implementations must not
// block; delivery is best effort.
type EventEmitter interface {
	Emit(ctx context.Context, orgID, event string, payload map[string]any)
}

// MultiEmitter fans each event out to every wired emitter.
type MultiEmitter []EventEmitter

// Emit forwards the event to each emitter in order.
func (m MultiEmitter) Emit(ctx context.Context, orgID, event string, payload map[string]any) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(ctx, orgID, event, payload)
		}
	}
}

// trendingWindow bounds the vote-recency subquery used by the trending sort.
const trendingWindow = 14 * 24 * time.Hour

// PostService manages feedback posts, voting, and status transitions.
type PostService struct {
	db      *gorm.DB
	audit   *AuditService
	emitter EventEmitter
	now     func() time.Time
}

// PostOption customises the service.
type PostOption func(*PostService)

// WithPostEvents wires an event emitter for webhook and activity fan-out.
func WithPostEvents(emitter EventEmitter) PostOption {
	return func(s *PostService) {
		s.emitter = emitter
	}
}

// WithPostClock overrides the time source, used in tests.
func WithPostClock(now func() time.Time) PostOption {
	return func(s *PostService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPostService constructs a PostService.
func NewPostService(db *gorm.DB, audit *AuditService, opts ...PostOption) (*PostService, error) {
	if db == nil {
		return nil, errors.New("post service: db is required")
	}
	svc := &PostService{db: db, audit: audit, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreatePostInput carries fields for a new post.
type CreatePostInput struct {
	BoardID  string `validate:"required,uuid"`
	AuthorID string `validate:"required,uuid"`
	Title    string `validate:"required,min=3,max=200"`
	Content  string `validate:"max=10000"`
	StatusID string `validate:"omitempty,uuid"`
	TagIDs   []string
}

// Create submits a post to a board. When no status is given the organization's
// default status is assigned.
func (s *PostService) Create(ctx context.Context, orgID string, input CreatePostInput) (*models.Post, error) {
	ctx = ensureContext(ctx)

	var board models.Board
	err := s.db.WithContext(ctx).
		First(&board, "id = ? AND organization_id = ?", input.BoardID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post service: load board: %w", err)
	}

	statusID := input.StatusID
	if statusID == "" {
		var status models.Status
		err := s.db.WithContext(ctx).
			First(&status, "organization_id = ? AND is_default = ?", orgID, true).Error
		if err != nil {
			return nil, fmt.Errorf("post service: load default status: %w", err)
		}
		statusID = status.ID
	} else {
		var count int64
		err := s.db.WithContext(ctx).Model(&models.Status{}).
			Where("id = ? AND organization_id = ?", statusID, orgID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("post service: check status: %w", err)
		}
		if count == 0 {
			return nil, ErrStatusNotFound
		}
	}

	post := &models.Post{
		OrganizationID: orgID,
		BoardID:        input.BoardID,
		AuthorID:       input.AuthorID,
		Title:          strings.TrimSpace(input.Title),
		Content:        input.Content,
		StatusID:       statusID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		if len(input.TagIDs) > 0 {
			return s.replaceTags(tx, orgID, post, input.TagIDs)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("post service: %w", err)
	}

	metrics.PostsCreated.WithLabelValues(orgID).Inc()
	s.emit(ctx, orgID, "post.created", map[string]any{
		"post_id":  post.ID,
		"board_id": post.BoardID,
		"title":    post.Title,
	})
	return s.GetByID(ctx, orgID, post.ID)
}

// GetByID fetches one post with its board, status, tags, and author.
func (s *PostService) GetByID(ctx context.Context, orgID, postID string) (*models.Post, error) {
	ctx = ensureContext(ctx)

	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Board").
		Preload("Status").
		Preload("Tags").
		Preload("Author").
		First(&post, "id = ? AND organization_id = ?", postID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post service: get post: %w", err)
	}
	return &post, nil
}

// Post sort orders.
const (
	SortNewest   = "newest"
	SortTop      = "top"
	SortTrending = "trending"
)

// PostFilters narrows List queries.
type PostFilters struct {
	BoardID  string
	StatusID string
	TagID    string
	Search   string
	Sort     string
}

// PostListOptions controls pagination.
type PostListOptions struct {
	Page     int
	PageSize int
}

const (
	defaultPostPageSize = 20
	maxPostPageSize     = 100
)

// List returns a page of posts with the total count. Pinned posts sort first
// within every order; trending weighs votes cast inside the recency window.
func (s *PostService) List(ctx context.Context, orgID string, filters PostFilters, opts PostListOptions) ([]models.Post, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = defaultPostPageSize
	}
	if pageSize > maxPostPageSize {
		pageSize = maxPostPageSize
	}

	query := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("posts.organization_id = ?", orgID)

	if filters.BoardID != "" {
		query = query.Where("posts.board_id = ?", filters.BoardID)
	}
	if filters.StatusID != "" {
		query = query.Where("posts.status_id = ?", filters.StatusID)
	}
	if filters.TagID != "" {
		query = query.
			Joins("JOIN post_tags ON post_tags.post_id = posts.id").
			Where("post_tags.tag_id = ?", filters.TagID)
	}
	if term := strings.TrimSpace(filters.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(posts.title) LIKE ? OR LOWER(posts.content) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("post service: count posts: %w", err)
	}

	switch filters.Sort {
	case SortTop:
		query = query.Order("posts.pinned DESC, posts.vote_count DESC, posts.created_at DESC")
	case SortTrending:
		cutoff := s.now().UTC().Add(-trendingWindow)
		query = query.
			Select("posts.*, (SELECT COUNT(*) FROM votes WHERE votes.post_id = posts.id AND votes.created_at >= ?) AS recent_votes", cutoff).
			Order("posts.pinned DESC, recent_votes DESC, posts.vote_count DESC, posts.created_at DESC")
	default:
		query = query.Order("posts.pinned DESC, posts.created_at DESC")
	}

	var posts []models.Post
	err := query.
		Preload("Status").
		Preload("Tags").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&posts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("post service: list posts: %w", err)
	}
	return posts, total, nil
}

// UpdatePostInput carries optional fields; nil means leave unchanged.
type UpdatePostInput struct {
	Title   *string `validate:"omitempty,min=3,max=200"`
	Content *string `validate:"omitempty,max=10000"`
	BoardID *string `validate:"omitempty,uuid"`
	Pinned  *bool
	TagIDs  []string
}

// Update applies partial changes to a post. TagIDs, when non-nil, replace the
// post's tags wholesale.
func (s *PostService) Update(ctx context.Context, orgID, postID string, input UpdatePostInput) (*models.Post, error) {
	ctx = ensureContext(ctx)

	post, err := s.GetByID(ctx, orgID, postID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Content != nil {
		updates["content"] = *input.Content
	}
	if input.BoardID != nil {
		var count int64
		err := s.db.WithContext(ctx).Model(&models.Board{}).
			Where("id = ? AND organization_id = ?", *input.BoardID, orgID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("post service: check board: %w", err)
		}
		if count == 0 {
			return nil, ErrBoardNotFound
		}
		updates["board_id"] = *input.BoardID
	}
	if input.Pinned != nil {
		updates["pinned"] = *input.Pinned
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(post).Updates(updates).Error; err != nil {
				return fmt.Errorf("update post: %w", err)
			}
		}
		if input.TagIDs != nil {
			return s.replaceTags(tx, orgID, post, input.TagIDs)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("post service: %w", err)
	}
	return s.GetByID(ctx, orgID, postID)
}

// ChangeStatus moves a post to another status, records the change, and emits
// the status event for webhooks and the activity feed.
func (s *PostService) ChangeStatus(ctx context.Context, orgID, postID, statusID string, actorID string) (*models.Post, error) {
	ctx = ensureContext(ctx)

	post, err := s.GetByID(ctx, orgID, postID)
	if err != nil {
		return nil, err
	}

	var status models.Status
	err = s.db.WithContext(ctx).
		First(&status, "id = ? AND organization_id = ?", statusID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post service: load status: %w", err)
	}

	if post.StatusID == statusID {
		return post, nil
	}
	previous := post.StatusID

	if err := s.db.WithContext(ctx).Model(post).Update("status_id", statusID).Error; err != nil {
		return nil, fmt.Errorf("post service: change status: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		UserID:         &actorID,
		Action:         "post.status_change",
		Resource:       post.ID,
		Result:         "success",
		Metadata: map[string]any{
			"from": previous,
			"to":   statusID,
		},
	})
	s.emit(ctx, orgID, "post.status_changed", map[string]any{
		"post_id":     post.ID,
		"title":       post.Title,
		"status_id":   statusID,
		"status_slug": status.Slug,
	})
	return s.GetByID(ctx, orgID, postID)
}

// Delete removes a post along with its votes, comments, and tag links.
func (s *PostService) Delete(ctx context.Context, orgID, postID string) error {
	ctx = ensureContext(ctx)

	post, err := s.GetByID(ctx, orgID, postID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			"DELETE FROM reactions WHERE comment_id IN (SELECT id FROM comments WHERE post_id = ?)", postID,
		).Error; err != nil {
			return fmt.Errorf("delete reactions: %w", err)
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Vote{}).Error; err != nil {
			return fmt.Errorf("delete votes: %w", err)
		}
		if err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", postID).Error; err != nil {
			return fmt.Errorf("detach tags: %w", err)
		}
		return tx.Delete(&models.Post{}, "id = ?", postID).Error
	})
	if err != nil {
		return fmt.Errorf("post service: delete post: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "post.delete",
		Resource:       post.Title,
		Result:         "success",
	})
	return nil
}

// Vote records an upvote. Repeat votes from the same user are no-ops; the
// denormalized vote_count moves in the same transaction as the vote row.
func (s *PostService) Vote(ctx context.Context, orgID, postID, userID string) (*models.Post, error) {
	ctx = ensureContext(ctx)

	if _, err := s.GetByID(ctx, orgID, postID); err != nil {
		return nil, err
	}

	voted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vote := &models.Vote{PostID: postID, UserID: userID}
		if err := tx.Create(vote).Error; err != nil {
			if isUniqueConstraintError(err) {
				return nil
			}
			return fmt.Errorf("create vote: %w", err)
		}
		voted = true
		return tx.Model(&models.Post{}).
			Where("id = ?", postID).
			Update("vote_count", gorm.Expr("vote_count + 1")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("post service: vote: %w", err)
	}

	if voted {
		metrics.VotesRecorded.WithLabelValues("vote").Inc()
	}
	return s.GetByID(ctx, orgID, postID)
}

// Unvote removes the caller's vote if present.
func (s *PostService) Unvote(ctx context.Context, orgID, postID, userID string) (*models.Post, error) {
	ctx = ensureContext(ctx)

	if _, err := s.GetByID(ctx, orgID, postID); err != nil {
		return nil, err
	}

	removed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Vote{})
		if result.Error != nil {
			return fmt.Errorf("delete vote: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&models.Post{}).
			Where("id = ? AND vote_count > 0", postID).
			Update("vote_count", gorm.Expr("vote_count - 1")).Error
	})
	if err != nil {
		return nil, fmt.Errorf("post service: unvote: %w", err)
	}

	if removed {
		metrics.VotesRecorded.WithLabelValues("unvote").Inc()
	}
	return s.GetByID(ctx, orgID, postID)
}

// HasVoted reports whether the user has an active vote on the post.
func (s *PostService) HasVoted(ctx context.Context, postID, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("post service: check vote: %w", err)
	}
	return count > 0, nil
}

func (s *PostService) replaceTags(tx *gorm.DB, orgID string, post *models.Post, tagIDs []string) error {
	ids := normaliseIDs(tagIDs)

	var tags []models.Tag
	if len(ids) > 0 {
		if err := tx.Where("organization_id = ? AND id IN ?", orgID, ids).Find(&tags).Error; err != nil {
			return fmt.Errorf("load tags: %w", err)
		}
		if len(tags) != len(ids) {
			return apperrors.NewBadRequest("One or more tags do not exist")
		}
	}
	if err := tx.Model(post).Association("Tags").Replace(tags); err != nil {
		return fmt.Errorf("replace tags: %w", err)
	}
	return nil
}

func (s *PostService) emit(ctx context.Context, orgID, event string, payload map[string]any) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, orgID, event, payload)
}
