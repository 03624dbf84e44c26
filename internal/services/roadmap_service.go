package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

// ErrRoadmapNotFound indicates the roadmap does not exist in the organization.
var ErrRoadmapNotFound = errors.New("roadmap service: roadmap not found")

// RoadmapService manages kanban roadmaps grouping posts by status column.
type RoadmapService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewRoadmapService constructs a RoadmapService.
func NewRoadmapService(db *gorm.DB, audit *AuditService) (*RoadmapService, error) {
	if db == nil {
		return nil, errors.New("roadmap service: db is required")
	}
	return &RoadmapService{db: db, audit: audit}, nil
}

// CreateRoadmapInput carries fields for a new roadmap.
type CreateRoadmapInput struct {
	Name      string   `validate:"required,min=2,max=120"`
	Slug      string   `validate:"omitempty,slug"`
	Public    bool
	StatusIDs []string `validate:"required,min=1"`
}

// Create adds a roadmap with an ordered list of status columns. Every status
// must belong to the organization.
func (s *RoadmapService) Create(ctx context.Context, orgID string, input CreateRoadmapInput) (*models.Roadmap, error) {
	ctx = ensureContext(ctx)

	slug := input.Slug
	if slug == "" {
		slug = slugify(input.Name)
	}
	if slug == "" {
		return nil, apperrors.NewBadRequest("Roadmap slug cannot be empty")
	}

	statusIDs := normaliseIDs(input.StatusIDs)
	if len(statusIDs) == 0 {
		return nil, apperrors.NewBadRequest("Roadmap needs at least one status column")
	}
	if err := s.checkStatuses(ctx, orgID, statusIDs); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(statusIDs)
	if err != nil {
		return nil, fmt.Errorf("roadmap service: marshal status ids: %w", err)
	}

	roadmap := &models.Roadmap{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(input.Name),
		Slug:           slug,
		Public:         input.Public,
		StatusIDs:      datatypes.JSON(raw),
	}
	if err := s.db.WithContext(ctx).Create(roadmap).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("roadmap.slug_taken", "A roadmap with this slug already exists")
		}
		return nil, fmt.Errorf("roadmap service: create roadmap: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "roadmap.create",
		Resource:       roadmap.Slug,
		Result:         "success",
	})
	return roadmap, nil
}

// GetByID fetches one roadmap scoped to the organization.
func (s *RoadmapService) GetByID(ctx context.Context, orgID, roadmapID string) (*models.Roadmap, error) {
	ctx = ensureContext(ctx)

	var roadmap models.Roadmap
	err := s.db.WithContext(ctx).
		First(&roadmap, "id = ? AND organization_id = ?", roadmapID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoadmapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roadmap service: get roadmap: %w", err)
	}
	return &roadmap, nil
}

// List returns roadmaps, optionally restricted to public ones for the portal.
func (s *RoadmapService) List(ctx context.Context, orgID string, publicOnly bool) ([]models.Roadmap, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if publicOnly {
		query = query.Where("public = ?", true)
	}

	var roadmaps []models.Roadmap
	if err := query.Order("name ASC").Find(&roadmaps).Error; err != nil {
		return nil, fmt.Errorf("roadmap service: list roadmaps: %w", err)
	}
	return roadmaps, nil
}

// UpdateRoadmapInput carries optional fields; nil means leave unchanged.
type UpdateRoadmapInput struct {
	Name      *string `validate:"omitempty,min=2,max=120"`
	Slug      *string `validate:"omitempty,slug"`
	Public    *bool
	StatusIDs []string
}

// Update applies partial changes. A non-nil StatusIDs replaces the column
// order wholesale.
func (s *RoadmapService) Update(ctx context.Context, orgID, roadmapID string, input UpdateRoadmapInput) (*models.Roadmap, error) {
	ctx = ensureContext(ctx)

	roadmap, err := s.GetByID(ctx, orgID, roadmapID)
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
	if input.Public != nil {
		updates["public"] = *input.Public
	}
	if input.StatusIDs != nil {
		statusIDs := normaliseIDs(input.StatusIDs)
		if len(statusIDs) == 0 {
			return nil, apperrors.NewBadRequest("Roadmap needs at least one status column")
		}
		if err := s.checkStatuses(ctx, orgID, statusIDs); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(statusIDs)
		if err != nil {
			return nil, fmt.Errorf("roadmap service: marshal status ids: %w", err)
		}
		updates["status_ids"] = datatypes.JSON(raw)
	}
	if len(updates) == 0 {
		return roadmap, nil
	}

	if err := s.db.WithContext(ctx).Model(roadmap).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("roadmap.slug_taken", "A roadmap with this slug already exists")
		}
		return nil, fmt.Errorf("roadmap service: update roadmap: %w", err)
	}
	return s.GetByID(ctx, orgID, roadmapID)
}

// Delete removes a roadmap. Posts and statuses are untouched.
func (s *RoadmapService) Delete(ctx context.Context, orgID, roadmapID string) error {
	ctx = ensureContext(ctx)

	roadmap, err := s.GetByID(ctx, orgID, roadmapID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(roadmap).Error; err != nil {
		return fmt.Errorf("roadmap service: delete roadmap: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "roadmap.delete",
		Resource:       roadmap.Slug,
		Result:         "success",
	})
	return nil
}

// RoadmapColumn is one status column with its posts ordered by vote count.
type RoadmapColumn struct {
	Status models.Status `json:"status"`
	Posts  []models.Post `json:"posts"`
}

// Columns resolves a roadmap into its ordered columns. Columns referencing a
// deleted status are skipped.
func (s *RoadmapService) Columns(ctx context.Context, orgID, roadmapID string) ([]RoadmapColumn, error) {
	ctx = ensureContext(ctx)

	roadmap, err := s.GetByID(ctx, orgID, roadmapID)
	if err != nil {
		return nil, err
	}

	var statusIDs []string
	if len(roadmap.StatusIDs) > 0 {
		if err := json.Unmarshal(roadmap.StatusIDs, &statusIDs); err != nil {
			return nil, fmt.Errorf("roadmap service: decode status ids: %w", err)
		}
	}

	columns := make([]RoadmapColumn, 0, len(statusIDs))
	for _, statusID := range statusIDs {
		var status models.Status
		err := s.db.WithContext(ctx).
			First(&status, "id = ? AND organization_id = ?", statusID, orgID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("roadmap service: load status: %w", err)
		}

		var posts []models.Post
		err = s.db.WithContext(ctx).
			Where("organization_id = ? AND status_id = ?", orgID, statusID).
			Order("vote_count DESC, created_at DESC").
			Preload("Tags").
			Find(&posts).Error
		if err != nil {
			return nil, fmt.Errorf("roadmap service: load posts: %w", err)
		}

		columns = append(columns, RoadmapColumn{Status: status, Posts: posts})
	}
	return columns, nil
}

func (s *RoadmapService) checkStatuses(ctx context.Context, orgID string, statusIDs []string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Status{}).
		Where("organization_id = ? AND id IN ?", orgID, statusIDs).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("roadmap service: check statuses: %w", err)
	}
	if count != int64(len(statusIDs)) {
		return apperrors.NewBadRequest("One or more statuses do not exist")
	}
	return nil
}
