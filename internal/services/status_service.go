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

// ErrStatusNotFound indicates the status does not exist in the organization.
var ErrStatusNotFound = errors.New("status service: status not found")

// StatusService manages the per-organization post workflow states. Exactly one
// status per organization carries the default flag; every mutation below keeps
// that invariant inside a transaction.
type StatusService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewStatusService constructs a StatusService.
func NewStatusService(db *gorm.DB, audit *AuditService) (*StatusService, error) {
	if db == nil {
		return nil, errors.New("status service: db is required")
	}
	return &StatusService{db: db, audit: audit}, nil
}

// CreateStatusInput carries fields for a new status.
type CreateStatusInput struct {
	Name      string `validate:"required,min=2,max=60"`
	Slug      string `validate:"omitempty,slug"`
	Color     string `validate:"omitempty,hexcolor"`
	Category  string `validate:"required"`
	IsDefault bool
}

// Create adds a workflow status. When IsDefault is set the previous default is
// demoted in the same transaction.
func (s *StatusService) Create(ctx context.Context, orgID string, input CreateStatusInput) (*models.Status, error) {
	ctx = ensureContext(ctx)

	if !models.ValidStatusCategory(input.Category) {
		return nil, apperrors.NewBadRequest("Unknown status category")
	}

	slug := input.Slug
	if slug == "" {
		slug = slugify(input.Name)
	}
	if slug == "" {
		return nil, apperrors.NewBadRequest("Status slug cannot be empty")
	}

	status := &models.Status{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(input.Name),
		Slug:           slug,
		Color:          input.Color,
		Category:       input.Category,
		IsDefault:      input.IsDefault,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var position int64
		if err := tx.Model(&models.Status{}).
			Where("organization_id = ?", orgID).
			Count(&position).Error; err != nil {
			return fmt.Errorf("count statuses: %w", err)
		}
		status.Position = int(position)

		if input.IsDefault {
			if err := demoteDefaultStatus(tx, orgID); err != nil {
				return err
			}
		}
		if err := tx.Create(status).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewConflict("status.slug_taken", "A status with this slug already exists")
			}
			return fmt.Errorf("create status: %w", err)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("status service: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "status.create",
		Resource:       status.Slug,
		Result:         "success",
	})
	return status, nil
}

// GetByID fetches one status scoped to the organization.
func (s *StatusService) GetByID(ctx context.Context, orgID, statusID string) (*models.Status, error) {
	ctx = ensureContext(ctx)

	var status models.Status
	err := s.db.WithContext(ctx).
		First(&status, "id = ? AND organization_id = ?", statusID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("status service: get status: %w", err)
	}
	return &status, nil
}

// List returns the organization's statuses in display order.
func (s *StatusService) List(ctx context.Context, orgID string) ([]models.Status, error) {
	ctx = ensureContext(ctx)

	var statuses []models.Status
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("position ASC, name ASC").
		Find(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("status service: list statuses: %w", err)
	}
	return statuses, nil
}

// Default returns the organization's default status.
func (s *StatusService) Default(ctx context.Context, orgID string) (*models.Status, error) {
	ctx = ensureContext(ctx)

	var status models.Status
	err := s.db.WithContext(ctx).
		First(&status, "organization_id = ? AND is_default = ?", orgID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("status service: get default status: %w", err)
	}
	return &status, nil
}

// UpdateStatusInput carries optional fields; nil means leave unchanged.
type UpdateStatusInput struct {
	Name      *string `validate:"omitempty,min=2,max=60"`
	Color     *string `validate:"omitempty,hexcolor"`
	Category  *string
	Position  *int `validate:"omitempty,min=0"`
	IsDefault *bool
}

// Update applies partial changes. Promoting a status to default demotes the
// current default; demoting the only default is rejected so the organization
// always retains one.
func (s *StatusService) Update(ctx context.Context, orgID, statusID string, input UpdateStatusInput) (*models.Status, error) {
	ctx = ensureContext(ctx)

	status, err := s.GetByID(ctx, orgID, statusID)
	if err != nil {
		return nil, err
	}

	if input.Category != nil && !models.ValidStatusCategory(*input.Category) {
		return nil, apperrors.NewBadRequest("Unknown status category")
	}
	if input.IsDefault != nil && !*input.IsDefault && status.IsDefault {
		return nil, apperrors.NewConflict("status.default_required", "Promote another status to default first")
	}

	updates := map[string]any{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Color != nil {
		updates["color"] = *input.Color
	}
	if input.Category != nil {
		updates["category"] = *input.Category
	}
	if input.Position != nil {
		updates["position"] = *input.Position
	}
	if input.IsDefault != nil && *input.IsDefault {
		updates["is_default"] = true
	}
	if len(updates) == 0 {
		return status, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if promote, ok := updates["is_default"].(bool); ok && promote && !status.IsDefault {
			if err := demoteDefaultStatus(tx, orgID); err != nil {
				return err
			}
		}
		return tx.Model(status).Updates(updates).Error
	})
	if err != nil {
		return nil, fmt.Errorf("status service: update status: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "status.update",
		Resource:       status.Slug,
		Result:         "success",
	})
	return s.GetByID(ctx, orgID, statusID)
}

// Delete removes a status. The default status and statuses still assigned to
// posts are protected.
func (s *StatusService) Delete(ctx context.Context, orgID, statusID string) error {
	ctx = ensureContext(ctx)

	status, err := s.GetByID(ctx, orgID, statusID)
	if err != nil {
		return err
	}
	if status.IsDefault {
		return apperrors.NewConflict("status.default_required", "The default status cannot be deleted")
	}

	var posts int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("status_id = ?", statusID).
		Count(&posts).Error; err != nil {
		return fmt.Errorf("status service: count posts: %w", err)
	}
	if posts > 0 {
		return apperrors.NewConflict("status.in_use", "Reassign the status's posts first")
	}

	if err := s.db.WithContext(ctx).Delete(status).Error; err != nil {
		return fmt.Errorf("status service: delete status: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "status.delete",
		Resource:       status.Slug,
		Result:         "success",
	})
	return nil
}

func demoteDefaultStatus(tx *gorm.DB, orgID string) error {
	err := tx.Model(&models.Status{}).
		Where("organization_id = ? AND is_default = ?", orgID, true).
		Update("is_default", false).Error
	if err != nil {
		return fmt.Errorf("demote default status: %w", err)
	}
	return nil
}
