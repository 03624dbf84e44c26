package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/crypto"
	apperrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/mail"
)

// Invitation defaults.
const (
	defaultInviteExpiry     = 72 * time.Hour
	defaultInviteTokenBytes = 48
)

// Sentinel errors for invitation operations.
var (
	ErrInviteNotFound = errors.New("invite service: invitation not found")
	ErrInviteExpired  = &apperrors.AppError{
		Code:       "invite.expired",
		Message:    "This invitation has expired",
		StatusCode: http.StatusGone,
	}
	ErrInviteUsed = &apperrors.AppError{
		Code:       "invite.used",
		Message:    "This invitation was already redeemed",
		StatusCode: http.StatusConflict,
	}
)

// InviteService issues and redeems member invitations. Tokens are random and
// only their hash is stored.
type InviteService struct {
	db        *gorm.DB
	audit     *AuditService
	mailer    mail.Mailer
	baseURL   string
	expiry    time.Duration
	tokenSize int
	now       func() time.Time
}

// InviteOption customises the service.
type InviteOption func(*InviteService)

// WithInviteMailer wires email delivery for new invitations.
func WithInviteMailer(mailer mail.Mailer) InviteOption {
	return func(s *InviteService) {
		s.mailer = mailer
	}
}

// WithInviteBaseURL sets the public URL used to build invitation links.
func WithInviteBaseURL(baseURL string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithInviteExpiry overrides the invitation lifetime.
func WithInviteExpiry(expiry time.Duration) InviteOption {
	return func(s *InviteService) {
		if expiry > 0 {
			s.expiry = expiry
		}
	}
}

// WithInviteClock overrides the time source, used in tests.
func WithInviteClock(now func() time.Time) InviteOption {
	return func(s *InviteService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInviteService constructs an InviteService.
func NewInviteService(db *gorm.DB, audit *AuditService, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	svc := &InviteService{
		db:        db,
		audit:     audit,
		expiry:    defaultInviteExpiry,
		tokenSize: defaultInviteTokenBytes,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateInviteInput carries fields for a new invitation.
type CreateInviteInput struct {
	Email     string `validate:"required,email"`
	Role      string `validate:"required"`
	InvitedBy string `validate:"required,uuid"`
}

// Create issues an invitation and returns the raw token alongside the stored
// record. Re-inviting replaces any pending invitation for the same email.
func (s *InviteService) Create(ctx context.Context, orgID string, input CreateInviteInput) (string, *models.Invitation, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !models.ValidRole(input.Role) {
		return "", nil, apperrors.NewBadRequest("Unknown member role")
	}

	var existing int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Joins("JOIN users ON users.id = members.user_id").
		Where("members.organization_id = ? AND users.email = ?", orgID, email).
		Count(&existing).Error
	if err != nil {
		return "", nil, fmt.Errorf("invite service: check membership: %w", err)
	}
	if existing > 0 {
		return "", nil, apperrors.NewConflict("member.exists", "User is already a member of this organization")
	}

	token, err := crypto.GenerateToken(s.tokenSize)
	if err != nil {
		return "", nil, fmt.Errorf("invite service: generate token: %w", err)
	}

	invitation := &models.Invitation{
		OrganizationID: orgID,
		Email:          email,
		Role:           input.Role,
		TokenHash:      hashInviteToken(token),
		InvitedBy:      input.InvitedBy,
		ExpiresAt:      s.now().UTC().Add(s.expiry),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("organization_id = ? AND email = ? AND accepted_at IS NULL", orgID, email).
			Delete(&models.Invitation{}).Error; err != nil {
			return fmt.Errorf("replace pending invitation: %w", err)
		}
		return tx.Create(invitation).Error
	})
	if err != nil {
		return "", nil, fmt.Errorf("invite service: create invitation: %w", err)
	}

	s.sendInviteEmail(ctx, invitation, token)
	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		UserID:         &input.InvitedBy,
		Action:         "invite.create",
		Resource:       email,
		Result:         "success",
		Metadata:       map[string]any{"role": input.Role},
	})
	return token, invitation, nil
}

// List returns the organization's pending invitations.
func (s *InviteService) List(ctx context.Context, orgID string) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	var invitations []models.Invitation
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND accepted_at IS NULL", orgID).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("invite service: list invitations: %w", err)
	}
	return invitations, nil
}

// Revoke deletes a pending invitation.
func (s *InviteService) Revoke(ctx context.Context, orgID, invitationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ? AND accepted_at IS NULL", invitationID, orgID).
		Delete(&models.Invitation{})
	if result.Error != nil {
		return fmt.Errorf("invite service: revoke invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// RedeemInput carries fields for accepting an invitation.
type RedeemInput struct {
	Token    string `validate:"required"`
	Name     string `validate:"required,min=1,max=120"`
	Password string `validate:"required,min=10"`
}

// Redeem accepts an invitation: the user and membership are created in one
// transaction, and the invitation is marked accepted. An existing user with
// the invited email is linked instead of recreated.
func (s *InviteService) Redeem(ctx context.Context, input RedeemInput) (*models.User, *models.Member, error) {
	ctx = ensureContext(ctx)

	var invitation models.Invitation
	err := s.db.WithContext(ctx).
		First(&invitation, "token_hash = ?", hashInviteToken(input.Token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("invite service: load invitation: %w", err)
	}

	if invitation.AcceptedAt != nil {
		return nil, nil, ErrInviteUsed
	}
	if s.now().UTC().After(invitation.ExpiresAt) {
		return nil, nil, ErrInviteExpired
	}

	passwordHash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("invite service: hash password: %w", err)
	}

	var user models.User
	var member models.Member
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&user, "email = ?", invitation.Email).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				Email:    invitation.Email,
				Name:     strings.TrimSpace(input.Name),
				Password: passwordHash,
				IsActive: true,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}
		case err != nil:
			return fmt.Errorf("load user: %w", err)
		default:
			if user.Password == "" {
				if err := tx.Model(&user).Update("password", passwordHash).Error; err != nil {
					return fmt.Errorf("set password: %w", err)
				}
			}
		}

		member = models.Member{
			OrganizationID: invitation.OrganizationID,
			UserID:         user.ID,
			Role:           invitation.Role,
		}
		if err := tx.Create(&member).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewConflict("member.exists", "User is already a member of this organization")
			}
			return fmt.Errorf("create member: %w", err)
		}

		acceptedAt := s.now().UTC()
		return tx.Model(&invitation).Update("accepted_at", acceptedAt).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, nil, appErr
		}
		return nil, nil, fmt.Errorf("invite service: redeem invitation: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: invitation.OrganizationID,
		UserID:         &user.ID,
		Action:         "invite.redeem",
		Resource:       invitation.Email,
		Result:         "success",
	})
	return &user, &member, nil
}

func (s *InviteService) sendInviteEmail(ctx context.Context, invitation *models.Invitation, token string) {
	if s.mailer == nil {
		return
	}

	link := token
	if s.baseURL != "" {
		link = fmt.Sprintf("%s/invite/%s", s.baseURL, token)
	}
	msg := mail.Message{
		To:      []string{invitation.Email},
		Subject: "You have been invited to a feedback portal",
		Body: fmt.Sprintf(
			"You were invited to join as %s.\n\nAccept the invitation:\n%s\n\nThis link expires at %s.",
			invitation.Role, link, invitation.ExpiresAt.Format(time.RFC1123),
		),
	}
	if err := s.mailer.Send(ensureContext(ctx), msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		recordAudit(ctx, s.audit, AuditEntry{
			OrganizationID: invitation.OrganizationID,
			Action:         "invite.email",
			Resource:       invitation.Email,
			Result:         "failure",
			Metadata:       map[string]any{"error": err.Error()},
		})
	}
}

func hashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
