package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

// ErrMemberNotFound indicates no membership links the user to the organization.
var ErrMemberNotFound = errors.New("member service: member not found")

// MemberService manages team memberships within an organization.
type MemberService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewMemberService constructs a MemberService.
func NewMemberService(db *gorm.DB, audit *AuditService) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	return &MemberService{db: db, audit: audit}, nil
}

// Add links a user to the organization with the given role. Adding an existing
// member is a conflict.
func (s *MemberService) Add(ctx context.Context, orgID, userID, role string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	if !models.ValidRole(role) {
		return nil, apperrors.NewBadRequest("Unknown member role")
	}

	member := &models.Member{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("member.exists", "User is already a member of this organization")
		}
		return nil, fmt.Errorf("member service: add member: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "member.add",
		Resource:       userID,
		Result:         "success",
		Metadata:       map[string]any{"role": role},
	})
	return member, nil
}

// Get fetches the membership for a user within the organization.
func (s *MemberService) Get(ctx context.Context, orgID, userID string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	var member models.Member
	err := s.db.WithContext(ctx).
		Preload("User").
		First(&member, "organization_id = ? AND user_id = ?", orgID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("member service: get member: %w", err)
	}
	return &member, nil
}

// List returns the organization's members with their user records.
func (s *MemberService) List(ctx context.Context, orgID string) ([]models.Member, error) {
	ctx = ensureContext(ctx)

	var members []models.Member
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("member service: list members: %w", err)
	}
	return members, nil
}

// UpdateRole changes a member's role. Demoting the last owner is rejected so
// every organization keeps at least one.
func (s *MemberService) UpdateRole(ctx context.Context, orgID, userID, role string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	if !models.ValidRole(role) {
		return nil, apperrors.NewBadRequest("Unknown member role")
	}

	member, err := s.Get(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if member.Role == role {
		return member, nil
	}

	if member.Role == models.RoleOwner && role != models.RoleOwner {
		last, err := s.isLastOwner(ctx, orgID, userID)
		if err != nil {
			return nil, err
		}
		if last {
			return nil, apperrors.NewConflict("member.last_owner", "The last owner cannot be demoted")
		}
	}

	if err := s.db.WithContext(ctx).Model(member).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("member service: update role: %w", err)
	}
	member.Role = role

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "member.role_change",
		Resource:       userID,
		Result:         "success",
		Metadata:       map[string]any{"role": role},
	})
	return member, nil
}

// Remove deletes a membership. The last owner cannot be removed.
func (s *MemberService) Remove(ctx context.Context, orgID, userID string) error {
	ctx = ensureContext(ctx)

	member, err := s.Get(ctx, orgID, userID)
	if err != nil {
		return err
	}

	if member.Role == models.RoleOwner {
		last, err := s.isLastOwner(ctx, orgID, userID)
		if err != nil {
			return err
		}
		if last {
			return apperrors.NewConflict("member.last_owner", "The last owner cannot be removed")
		}
	}

	if err := s.db.WithContext(ctx).Delete(member).Error; err != nil {
		return fmt.Errorf("member service: remove member: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "member.remove",
		Resource:       userID,
		Result:         "success",
	})
	return nil
}

func (s *MemberService) isLastOwner(ctx context.Context, orgID, userID string) (bool, error) {
	var others int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("organization_id = ? AND role = ? AND user_id <> ?", orgID, models.RoleOwner, userID).
		Count(&others).Error
	if err != nil {
		return false, fmt.Errorf("member service: count owners: %w", err)
	}
	return others == 0, nil
}
