package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/database"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/crypto"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

// ErrSetupCompleted indicates the instance was already initialized.
var ErrSetupCompleted = &apperrors.AppError{
	Code:       "setup.completed",
	Message:    "This installation is already set up",
	StatusCode: http.StatusConflict,
}

// SetupService drives the first-run bootstrap of a self-hosted installation.
type SetupService struct {
	db    *gorm.DB
	orgs  *OrganizationService
	audit *AuditService
}

// NewSetupService constructs a SetupService.
func NewSetupService(db *gorm.DB, orgs *OrganizationService, audit *AuditService) (*SetupService, error) {
	if db == nil {
		return nil, errors.New("setup service: db is required")
	}
	if orgs == nil {
		return nil, errors.New("setup service: organization service is required")
	}
	return &SetupService{db: db, orgs: orgs, audit: audit}, nil
}

// SetupStatus reports whether bootstrap has run.
type SetupStatus struct {
	Completed    bool   `json:"completed"`
	InstanceMode string `json:"instance_mode,omitempty"`
}

// Status returns the bootstrap state.
func (s *SetupService) Status(ctx context.Context) (*SetupStatus, error) {
	ctx = ensureContext(ctx)

	completed, err := database.GetSystemSetting(ctx, s.db, database.SetupCompletedSetting)
	if err != nil {
		return nil, fmt.Errorf("setup service: read setup state: %w", err)
	}
	mode, err := database.GetSystemSetting(ctx, s.db, database.InstanceModeSetting)
	if err != nil {
		return nil, fmt.Errorf("setup service: read instance mode: %w", err)
	}
	return &SetupStatus{Completed: completed == "true", InstanceMode: mode}, nil
}

// InitializeInput carries the first organization and owner account.
type InitializeInput struct {
	OrganizationName string `validate:"required,min=2,max=120"`
	OrganizationSlug string `validate:"omitempty,slug"`
	AdminEmail       string `validate:"required,email"`
	AdminName        string `validate:"required,min=1,max=120"`
	AdminPassword    string `validate:"required,min=10"`
	SingleTenant     bool
}

// InitializeResult is what the bootstrap produced.
type InitializeResult struct {
	Organization *models.Organization `json:"organization"`
	Owner        *models.User         `json:"owner"`
}

// Initialize runs the one-time bootstrap: the first organization, its owner,
// and the installation-wide settings. A second call is rejected.
func (s *SetupService) Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	ctx = ensureContext(ctx)

	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	if status.Completed {
		return nil, ErrSetupCompleted
	}

	org, err := s.orgs.Create(ctx, CreateOrganizationInput{
		Name: input.OrganizationName,
		Slug: input.OrganizationSlug,
	})
	if err != nil {
		return nil, err
	}

	passwordHash, err := crypto.HashPassword(input.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("setup service: hash password: %w", err)
	}

	user := &models.User{
		Email:    strings.ToLower(strings.TrimSpace(input.AdminEmail)),
		Name:     strings.TrimSpace(input.AdminName),
		Password: passwordHash,
		IsActive: true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewConflict("user.exists", "A user with this email already exists")
			}
			return fmt.Errorf("create owner: %w", err)
		}
		member := &models.Member{
			OrganizationID: org.ID,
			UserID:         user.ID,
			Role:           models.RoleOwner,
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("create membership: %w", err)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("setup service: %w", err)
	}

	salt, err := crypto.GenerateToken(24)
	if err != nil {
		return nil, fmt.Errorf("setup service: generate salt: %w", err)
	}
	if err := database.UpsertSystemSetting(ctx, s.db, database.CredentialsSaltSetting, salt); err != nil {
		return nil, fmt.Errorf("setup service: store salt: %w", err)
	}

	mode := "multi_tenant"
	if input.SingleTenant {
		mode = "single_tenant"
		if err := database.UpsertSystemSetting(ctx, s.db, database.SingleTenantOrgSetting, org.ID); err != nil {
			return nil, fmt.Errorf("setup service: pin organization: %w", err)
		}
	}
	if err := database.UpsertSystemSetting(ctx, s.db, database.InstanceModeSetting, mode); err != nil {
		return nil, fmt.Errorf("setup service: store instance mode: %w", err)
	}
	if err := database.UpsertSystemSetting(ctx, s.db, database.SetupCompletedSetting, "true"); err != nil {
		return nil, fmt.Errorf("setup service: mark completed: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: org.ID,
		UserID:         &user.ID,
		Action:         "setup.initialize",
		Resource:       org.Slug,
		Result:         "success",
	})
	return &InitializeResult{Organization: org, Owner: user}, nil
}
