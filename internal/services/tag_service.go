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

// ErrTagNotFound indicates the tag does not exist in the organization.
var ErrTagNotFound = errors.New("tag service: tag not found")

// TagService manages org-scoped post labels.
type TagService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewTagService constructs a TagService.
func NewTagService(db *gorm.DB, audit *AuditService) (*TagService, error) {
	if db == nil {
		return nil, errors.New("tag service: db is required")
	}
	return &TagService{db: db, audit: audit}, nil
}

// CreateTagInput carries fields for a new tag.
type CreateTagInput struct {
	Name  string `validate:"required,min=1,max=60"`
	Slug  string `validate:"omitempty,slug"`
	Color string `validate:"omitempty,hexcolor"`
}

// Create adds a tag with an org-unique slug.
func (s *TagService) Create(ctx context.Context, orgID string, input CreateTagInput) (*models.Tag, error) {
	ctx = ensureContext(ctx)

	slug := input.Slug
	if slug == "" {
		slug = slugify(input.Name)
	}
	if slug == "" {
		return nil, apperrors.NewBadRequest("Tag slug cannot be empty")
	}

	tag := &models.Tag{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(input.Name),
		Slug:           slug,
		Color:          input.Color,
	}
	if err := s.db.WithContext(ctx).Create(tag).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("tag.slug_taken", "A tag with this slug already exists")
		}
		return nil, fmt.Errorf("tag service: create tag: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "tag.create",
		Resource:       tag.Slug,
		Result:         "success",
	})
	return tag, nil
}

// GetByID fetches one tag scoped to the organization.
func (s *TagService) GetByID(ctx context.Context, orgID, tagID string) (*models.Tag, error) {
	ctx = ensureContext(ctx)

	var tag models.Tag
	err := s.db.WithContext(ctx).
		First(&tag, "id = ? AND organization_id = ?", tagID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tag service: get tag: %w", err)
	}
	return &tag, nil
}

// List returns the organization's tags sorted by name.
func (s *TagService) List(ctx context.Context, orgID string) ([]models.Tag, error) {
	ctx = ensureContext(ctx)

	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("name ASC").
		Find(&tags).Error
	if err != nil {
		return nil, fmt.Errorf("tag service: list tags: %w", err)
	}
	return tags, nil
}

// UpdateTagInput carries optional fields; nil means leave unchanged.
type UpdateTagInput struct {
	Name  *string `validate:"omitempty,min=1,max=60"`
	Slug  *string `validate:"omitempty,slug"`
	Color *string `validate:"omitempty,hexcolor"`
}

// Update applies partial changes to a tag.
func (s *TagService) Update(ctx context.Context, orgID, tagID string, input UpdateTagInput) (*models.Tag, error) {
	ctx = ensureContext(ctx)

	tag, err := s.GetByID(ctx, orgID, tagID)
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
	if input.Color != nil {
		updates["color"] = *input.Color
	}
	if len(updates) == 0 {
		return tag, nil
	}

	if err := s.db.WithContext(ctx).Model(tag).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("tag.slug_taken", "A tag with this slug already exists")
		}
		return nil, fmt.Errorf("tag service: update tag: %w", err)
	}
	return s.GetByID(ctx, orgID, tagID)
}

// Delete removes a tag and detaches it from every post.
func (s *TagService) Delete(ctx context.Context, orgID, tagID string) error {
	ctx = ensureContext(ctx)

	tag, err := s.GetByID(ctx, orgID, tagID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM post_tags WHERE tag_id = ?", tagID).Error; err != nil {
			return fmt.Errorf("detach posts: %w", err)
		}
		return tx.Delete(tag).Error
	})
	if err != nil {
		return fmt.Errorf("tag service: delete tag: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "tag.delete",
		Resource:       tag.Slug,
		Result:         "success",
	})
	return nil
}
