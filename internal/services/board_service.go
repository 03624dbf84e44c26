package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

// ErrBoardNotFound indicates the board does not exist within the organization.
var ErrBoardNotFound = errors.New("board service: board not found")

// BoardService manages feedback boards within an organization.
type BoardService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewBoardService constructs a BoardService.
func NewBoardService(db *gorm.DB, audit *AuditService) (*BoardService, error) {
	if db == nil {
		return nil, errors.New("board service: db is required")
	}
	return &BoardService{db: db, audit: audit}, nil
}

// CreateBoardInput carries fields for a new board.
type CreateBoardInput struct {
	Name        string `validate:"required,min=2,max=120"`
	Slug        string `validate:"omitempty,slug"`
	Description string `validate:"max=500"`
	Private     bool
}

// Create adds a board. The slug is derived from the name when absent and must
// be unique within the organization.
func (s *BoardService) Create(ctx context.Context, orgID string, input CreateBoardInput) (*models.Board, error) {
	ctx = ensureContext(ctx)

	slug := input.Slug
	if slug == "" {
		slug = slugify(input.Name)
	}
	if slug == "" {
		return nil, apperrors.NewBadRequest("Board slug cannot be empty")
	}

	var position int64
	if err := s.db.WithContext(ctx).Model(&models.Board{}).
		Where("organization_id = ?", orgID).
		Count(&position).Error; err != nil {
		return nil, fmt.Errorf("board service: count boards: %w", err)
	}

	board := &models.Board{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(input.Name),
		Slug:           slug,
		Description:    strings.TrimSpace(input.Description),
		Private:        input.Private,
		Position:       int(position),
	}
	if err := s.db.WithContext(ctx).Create(board).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("board.slug_taken", "A board with this slug already exists")
		}
		return nil, fmt.Errorf("board service: create board: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "board.create",
		Resource:       board.Slug,
		Result:         "success",
	})
	return board, nil
}

// GetByID fetches one board scoped to the organization.
func (s *BoardService) GetByID(ctx context.Context, orgID, boardID string) (*models.Board, error) {
	ctx = ensureContext(ctx)

	var board models.Board
	err := s.db.WithContext(ctx).
		First(&board, "id = ? AND organization_id = ?", boardID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("board service: get board: %w", err)
	}
	return &board, nil
}

// GetBySlug fetches one board by its portal slug.
func (s *BoardService) GetBySlug(ctx context.Context, orgID, slug string) (*models.Board, error) {
	ctx = ensureContext(ctx)

	var board models.Board
	err := s.db.WithContext(ctx).
		First(&board, "slug = ? AND organization_id = ?", strings.ToLower(slug), orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("board service: get board: %w", err)
	}
	return &board, nil
}

// List returns the organization's boards in display order. Private boards are
// filtered out unless includePrivate is set.
func (s *BoardService) List(ctx context.Context, orgID string, includePrivate bool) ([]models.Board, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if !includePrivate {
		query = query.Where("private = ?", false)
	}

	var boards []models.Board
	if err := query.Order("position ASC, name ASC").Find(&boards).Error; err != nil {
		return nil, fmt.Errorf("board service: list boards: %w", err)
	}
	return boards, nil
}

// UpdateBoardInput carries optional fields; nil means leave unchanged.
type UpdateBoardInput struct {
	Name        *string `validate:"omitempty,min=2,max=120"`
	Slug        *string `validate:"omitempty,slug"`
	Description *string `validate:"omitempty,max=500"`
	Private     *bool
	Position    *int `validate:"omitempty,min=0"`
}

// Update applies partial changes to a board.
func (s *BoardService) Update(ctx context.Context, orgID, boardID string, input UpdateBoardInput) (*models.Board, error) {
	ctx = ensureContext(ctx)

	board, err := s.GetByID(ctx, orgID, boardID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Slug != nil {
		updates["slug"] = strings.ToLower(strings.TrimSpace(*input.Slug))
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Private != nil {
		updates["private"] = *input.Private
	}
	if input.Position != nil {
		updates["position"] = *input.Position
	}
	if len(updates) == 0 {
		return board, nil
	}

	if err := s.db.WithContext(ctx).Model(board).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("board.slug_taken", "A board with this slug already exists")
		}
		return nil, fmt.Errorf("board service: update board: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "board.update",
		Resource:       board.Slug,
		Result:         "success",
	})
	return s.GetByID(ctx, orgID, boardID)
}

// Delete removes an empty board. Boards still holding posts are rejected so
// feedback is never silently destroyed.
func (s *BoardService) Delete(ctx context.Context, orgID, boardID string) error {
	ctx = ensureContext(ctx)

	board, err := s.GetByID(ctx, orgID, boardID)
	if err != nil {
		return err
	}

	var posts int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("board_id = ?", boardID).
		Count(&posts).Error; err != nil {
		return fmt.Errorf("board service: count posts: %w", err)
	}
	if posts > 0 {
		return apperrors.NewConflict("board.not_empty", "Move or delete the board's posts first")
	}

	if err := s.db.WithContext(ctx).Delete(board).Error; err != nil {
		return fmt.Errorf("board service: delete board: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "board.delete",
		Resource:       board.Slug,
		Result:         "success",
	})
	return nil
}
