package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/mail"
)

type capturingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *capturingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func newInviteService(t *testing.T, db *gorm.DB, opts ...InviteOption) *InviteService {
	t.Helper()
	svc, err := NewInviteService(db, mustAudit(t, db), opts...)
	require.NoError(t, err)
	return svc
}

func TestInviteCreateSendsEmail(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	inviter := seedUser(t, db, "owner@example.com")
	mailer := &capturingMailer{}
	svc := newInviteService(t, db,
		WithInviteMailer(mailer),
		WithInviteBaseURL("https://feedback.example.com/"),
	)

	token, invitation, err := svc.Create(context.Background(), org.ID, CreateInviteInput{
		Email:     "New.Member@Example.com",
		Role:      models.RoleAdmin,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "new.member@example.com", invitation.Email)
	require.NotEqual(t, token, invitation.TokenHash)

	require.Len(t, mailer.messages, 1)
	require.Contains(t, mailer.messages[0].Body, "https://feedback.example.com/invite/"+token)
}

func TestInviteCreateReplacesPending(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	inviter := seedUser(t, db, "owner@example.com")
	svc := newInviteService(t, db)

	_, first, err := svc.Create(context.Background(), org.ID, CreateInviteInput{
		Email: "member@example.com", Role: models.RoleMember, InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	_, second, err := svc.Create(context.Background(), org.ID, CreateInviteInput{
		Email: "member@example.com", Role: models.RoleAdmin, InvitedBy: inviter.ID,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	pending, err := svc.List(context.Background(), org.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, models.RoleAdmin, pending[0].Role)
}

func TestInviteRedeemCreatesUserAndMember(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	inviter := seedUser(t, db, "owner@example.com")
	svc := newInviteService(t, db)

	token, _, err := svc.Create(context.Background(), org.ID, CreateInviteInput{
		Email: "member@example.com", Role: models.RoleMember, InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	user, member, err := svc.Redeem(context.Background(), RedeemInput{
		Token:    token,
		Name:     "New Member",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	require.Equal(t, "member@example.com", user.Email)
	require.NotEmpty(t, user.Password)
	require.Equal(t, org.ID, member.OrganizationID)
	require.Equal(t, models.RoleMember, member.Role)

	// A second redemption is rejected.
	_, _, err = svc.Redeem(context.Background(), RedeemInput{
		Token: token, Name: "Again", Password: "correct-horse-battery",
	})
	require.ErrorIs(t, err, ErrInviteUsed)
}

func TestInviteRedeemExpired(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	inviter := seedUser(t, db, "owner@example.com")

	issued := time.Now().UTC()
	clock := issued
	svc := newInviteService(t, db, WithInviteClock(func() time.Time { return clock }))

	token, _, err := svc.Create(context.Background(), org.ID, CreateInviteInput{
		Email: "member@example.com", Role: models.RoleMember, InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	clock = issued.Add(defaultInviteExpiry + time.Hour)
	_, _, err = svc.Redeem(context.Background(), RedeemInput{
		Token: token, Name: "Too Late", Password: "correct-horse-battery",
	})
	require.ErrorIs(t, err, ErrInviteExpired)
}

func TestInviteRedeemUnknownToken(t *testing.T) {
	db := newTestDB(t)
	svc := newInviteService(t, db)

	_, _, err := svc.Redeem(context.Background(), RedeemInput{
		Token: "not-a-real-token", Name: "Nobody", Password: "correct-horse-battery",
	})
	require.ErrorIs(t, err, ErrInviteNotFound)
}

func TestInviteRedeemLinksExistingUser(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	inviter := seedUser(t, db, "owner@example.com")
	existing := seedUser(t, db, "portal@example.com")
	svc := newInviteService(t, db)

	token, _, err := svc.Create(context.Background(), org.ID, CreateInviteInput{
		Email: "portal@example.com", Role: models.RoleMember, InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	user, member, err := svc.Redeem(context.Background(), RedeemInput{
		Token: token, Name: "Portal User", Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, user.ID)
	require.Equal(t, existing.ID, member.UserID)
}

func TestInviteCreateRejectsExistingMember(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	inviter := seedUser(t, db, "owner@example.com")
	member := seedUser(t, db, "member@example.com")
	require.NoError(t, db.Create(&models.Member{
		OrganizationID: org.ID, UserID: member.ID, Role: models.RoleMember,
	}).Error)
	svc := newInviteService(t, db)

	_, _, err := svc.Create(context.Background(), org.ID, CreateInviteInput{
		Email: "member@example.com", Role: models.RoleMember, InvitedBy: inviter.ID,
	})
	require.Error(t, err)
}

func TestInviteRevoke(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	inviter := seedUser(t, db, "owner@example.com")
	svc := newInviteService(t, db)

	_, invitation, err := svc.Create(context.Background(), org.ID, CreateInviteInput{
		Email: "member@example.com", Role: models.RoleMember, InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), org.ID, invitation.ID))
	require.ErrorIs(t, svc.Revoke(context.Background(), org.ID, invitation.ID), ErrInviteNotFound)
}
