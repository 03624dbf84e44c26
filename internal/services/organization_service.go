package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/database"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/crypto"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

// Sentinel errors for organization operations.
var (
	ErrOrganizationNotFound = errors.New("organization service: organization not found")
	ErrCustomDomainNotFound = errors.New("organization service: custom domain not found")
	ErrDomainNotVerified    = errors.New("organization service: domain verification pending")
)

// DomainInvalidator drops cached tenant resolutions when a custom domain
// changes. Satisfied by tenant.Resolver.
type DomainInvalidator interface {
	Invalidate(ctx context.Context, hostname string)
}

// OrganizationService manages tenants, their portal settings, and custom
// domains.
type OrganizationService struct {
	db          *gorm.DB
	audit       *AuditService
	invalidator DomainInvalidator
	now         func() time.Time
}

// OrganizationOption customises the service.
type OrganizationOption func(*OrganizationService)

// WithDomainInvalidator wires the tenant cache invalidation hook.
func WithDomainInvalidator(inv DomainInvalidator) OrganizationOption {
	return func(s *OrganizationService) {
		s.invalidator = inv
	}
}

// WithOrganizationClock overrides the time source, used in tests.
func WithOrganizationClock(now func() time.Time) OrganizationOption {
	return func(s *OrganizationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewOrganizationService constructs an OrganizationService.
func NewOrganizationService(db *gorm.DB, audit *AuditService, opts ...OrganizationOption) (*OrganizationService, error) {
	if db == nil {
		return nil, errors.New("organization service: db is required")
	}
	svc := &OrganizationService{db: db, audit: audit, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateOrganizationInput carries fields for a new tenant.
type CreateOrganizationInput struct {
	Name string `validate:"required,min=2,max=120"`
	Slug string `validate:"omitempty,slug"`
}

// Create provisions a tenant with its default statuses and board.
func (s *OrganizationService) Create(ctx context.Context, input CreateOrganizationInput) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	slug := input.Slug
	if slug == "" {
		slug = slugify(input.Name)
	}
	if slug == "" {
		return nil, apperrors.NewBadRequest("Organization slug cannot be empty")
	}

	org := &models.Organization{
		Name:     strings.TrimSpace(input.Name),
		Slug:     slug,
		Settings: datatypes.JSON([]byte("{}")),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewConflict("organization.slug_taken", "An organization with this slug already exists")
			}
			return fmt.Errorf("create organization: %w", err)
		}
		if err := database.SeedOrganizationDefaults(tx, org.ID); err != nil {
			return fmt.Errorf("seed organization defaults: %w", err)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("organization service: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: org.ID,
		Action:         "organization.create",
		Resource:       org.Slug,
		Result:         "success",
	})
	return org, nil
}

// GetByID fetches one organization.
func (s *OrganizationService) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	var org models.Organization
	err := s.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("organization service: get organization: %w", err)
	}
	return &org, nil
}

// GetBySlug fetches one organization by its portal slug.
func (s *OrganizationService) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	var org models.Organization
	err := s.db.WithContext(ctx).First(&org, "slug = ?", strings.ToLower(slug)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("organization service: get organization: %w", err)
	}
	return &org, nil
}

// List returns every organization ordered by name.
func (s *OrganizationService) List(ctx context.Context) ([]models.Organization, error) {
	ctx = ensureContext(ctx)

	var orgs []models.Organization
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("organization service: list organizations: %w", err)
	}
	return orgs, nil
}

// UpdateOrganizationInput carries optional fields; nil means leave unchanged.
type UpdateOrganizationInput struct {
	Name     *string        `validate:"omitempty,min=2,max=120"`
	Slug     *string        `validate:"omitempty,slug"`
	Settings map[string]any `validate:"-"`
}

// Update applies partial changes to an organization. Settings replace the
// stored JSON document wholesale.
func (s *OrganizationService) Update(ctx context.Context, id string, input UpdateOrganizationInput) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	org, err := s.GetByID(ctx, id)
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
	if input.Settings != nil {
		raw, err := json.Marshal(input.Settings)
		if err != nil {
			return nil, fmt.Errorf("organization service: marshal settings: %w", err)
		}
		updates["settings"] = datatypes.JSON(raw)
	}
	if len(updates) == 0 {
		return org, nil
	}

	if err := s.db.WithContext(ctx).Model(org).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("organization.slug_taken", "An organization with this slug already exists")
		}
		return nil, fmt.Errorf("organization service: update organization: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: org.ID,
		Action:         "organization.update",
		Resource:       org.Slug,
		Result:         "success",
	})
	return s.GetByID(ctx, id)
}

// SetLogo stores the portal logo bytes and mime type.
func (s *OrganizationService) SetLogo(ctx context.Context, id string, data []byte, mimeType string) error {
	ctx = ensureContext(ctx)

	if len(data) == 0 {
		return apperrors.NewBadRequest("Logo data cannot be empty")
	}

	result := s.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ?", id).
		Updates(map[string]any{"logo": data, "logo_mime_type": mimeType})
	if result.Error != nil {
		return fmt.Errorf("organization service: set logo: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// Delete removes an organization and everything scoped to it.
func (s *OrganizationService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	org, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var domains []models.CustomDomain
	if err := s.db.WithContext(ctx).Where("organization_id = ?", id).Find(&domains).Error; err != nil {
		return fmt.Errorf("organization service: load custom domains: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := func(model any) error {
			return tx.Where("organization_id = ?", id).Delete(model).Error
		}
		for _, model := range []any{
			&models.CustomDomain{},
			&models.WebhookTarget{},
			&models.Integration{},
			&models.SsoProvider{},
			&models.Invitation{},
			&models.Roadmap{},
			&models.Tag{},
			&models.Status{},
			&models.Member{},
		} {
			if err := scoped(model); err != nil {
				return err
			}
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.Board{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Organization{}, "id = ?", id).Error
	})
	if err != nil {
		return fmt.Errorf("organization service: delete organization: %w", err)
	}

	for _, d := range domains {
		s.invalidateDomain(ctx, d.Hostname)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: id,
		Action:         "organization.delete",
		Resource:       org.Slug,
		Result:         "success",
	})
	return nil
}

// AddCustomDomain registers a hostname for the organization and returns the
// record carrying the DNS verification token.
func (s *OrganizationService) AddCustomDomain(ctx context.Context, orgID, hostname string) (*models.CustomDomain, error) {
	ctx = ensureContext(ctx)

	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" || strings.ContainsAny(hostname, " /") || !strings.Contains(hostname, ".") {
		return nil, apperrors.NewBadRequest("Invalid hostname")
	}

	if _, err := s.GetByID(ctx, orgID); err != nil {
		return nil, err
	}

	token, err := crypto.GenerateToken(24)
	if err != nil {
		return nil, fmt.Errorf("organization service: generate verification token: %w", err)
	}

	domain := &models.CustomDomain{
		OrganizationID:    orgID,
		Hostname:          hostname,
		VerificationToken: token,
	}
	if err := s.db.WithContext(ctx).Create(domain).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("domain.taken", "This hostname is already registered")
		}
		return nil, fmt.Errorf("organization service: add custom domain: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "domain.add",
		Resource:       hostname,
		Result:         "success",
	})
	return domain, nil
}

// VerifyCustomDomain marks a domain verified after its DNS token check. The
// token comparison stands in for the TXT record lookup so tests and operators
// can drive verification directly.
func (s *OrganizationService) VerifyCustomDomain(ctx context.Context, orgID, domainID, token string) (*models.CustomDomain, error) {
	ctx = ensureContext(ctx)

	domain, err := s.getDomain(ctx, orgID, domainID)
	if err != nil {
		return nil, err
	}
	if domain.Verified() {
		return domain, nil
	}
	if token == "" || token != domain.VerificationToken {
		return nil, apperrors.New("domain.verification_failed", "DNS verification token mismatch", http.StatusUnprocessableEntity)
	}

	verifiedAt := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(domain).Update("verified_at", verifiedAt).Error; err != nil {
		return nil, fmt.Errorf("organization service: verify custom domain: %w", err)
	}
	domain.VerifiedAt = &verifiedAt

	s.invalidateDomain(ctx, domain.Hostname)
	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "domain.verify",
		Resource:       domain.Hostname,
		Result:         "success",
	})
	return domain, nil
}

// RemoveCustomDomain deletes a domain mapping and drops its cached resolution.
func (s *OrganizationService) RemoveCustomDomain(ctx context.Context, orgID, domainID string) error {
	ctx = ensureContext(ctx)

	domain, err := s.getDomain(ctx, orgID, domainID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(domain).Error; err != nil {
		return fmt.Errorf("organization service: remove custom domain: %w", err)
	}

	s.invalidateDomain(ctx, domain.Hostname)
	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "domain.remove",
		Resource:       domain.Hostname,
		Result:         "success",
	})
	return nil
}

// ListCustomDomains returns the organization's domains, newest first.
func (s *OrganizationService) ListCustomDomains(ctx context.Context, orgID string) ([]models.CustomDomain, error) {
	ctx = ensureContext(ctx)

	var domains []models.CustomDomain
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&domains).Error
	if err != nil {
		return nil, fmt.Errorf("organization service: list custom domains: %w", err)
	}
	return domains, nil
}

func (s *OrganizationService) getDomain(ctx context.Context, orgID, domainID string) (*models.CustomDomain, error) {
	var domain models.CustomDomain
	err := s.db.WithContext(ctx).
		First(&domain, "id = ? AND organization_id = ?", domainID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCustomDomainNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("organization service: get custom domain: %w", err)
	}
	return &domain, nil
}

func (s *OrganizationService) invalidateDomain(ctx context.Context, hostname string) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.Invalidate(ctx, hostname)
}
