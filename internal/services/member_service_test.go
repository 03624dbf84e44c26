package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

func newMemberService(t *testing.T, db *gorm.DB) *MemberService {
	t.Helper()
	svc, err := NewMemberService(db, mustAudit(t, db))
	require.NoError(t, err)
	return svc
}

func TestMemberAddAndList(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	owner := seedUser(t, db, "owner@example.com")
	admin := seedUser(t, db, "admin@example.com")
	svc := newMemberService(t, db)

	_, err := svc.Add(context.Background(), org.ID, owner.ID, models.RoleOwner)
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), org.ID, admin.ID, models.RoleAdmin)
	require.NoError(t, err)

	// Adding the same user twice conflicts.
	_, err = svc.Add(context.Background(), org.ID, admin.ID, models.RoleMember)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "member.exists", appErr.Code)

	members, err := svc.List(context.Background(), org.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.NotNil(t, members[0].User)
}

func TestMemberAddRejectsUnknownRole(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "user@example.com")
	svc := newMemberService(t, db)

	_, err := svc.Add(context.Background(), org.ID, user.ID, "superuser")
	require.Error(t, err)
}

func TestMemberLastOwnerGuard(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	owner := seedUser(t, db, "owner@example.com")
	second := seedUser(t, db, "second@example.com")
	svc := newMemberService(t, db)

	_, err := svc.Add(context.Background(), org.ID, owner.ID, models.RoleOwner)
	require.NoError(t, err)

	_, err = svc.UpdateRole(context.Background(), org.ID, owner.ID, models.RoleAdmin)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "member.last_owner", appErr.Code)

	err = svc.Remove(context.Background(), org.ID, owner.ID)
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "member.last_owner", appErr.Code)

	// With a second owner the first can step down.
	_, err = svc.Add(context.Background(), org.ID, second.ID, models.RoleOwner)
	require.NoError(t, err)

	demoted, err := svc.UpdateRole(context.Background(), org.ID, owner.ID, models.RoleMember)
	require.NoError(t, err)
	require.Equal(t, models.RoleMember, demoted.Role)

	require.NoError(t, svc.Remove(context.Background(), org.ID, owner.ID))
	_, err = svc.Get(context.Background(), org.ID, owner.ID)
	require.ErrorIs(t, err, ErrMemberNotFound)
}

func TestMemberRolesIndependentAcrossOrgs(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	other := seedOrg(t, db, "Globex")
	user := seedUser(t, db, "user@example.com")
	svc := newMemberService(t, db)

	_, err := svc.Add(context.Background(), org.ID, user.ID, models.RoleOwner)
	require.NoError(t, err)
	_, err = svc.Add(context.Background(), other.ID, user.ID, models.RoleMember)
	require.NoError(t, err)

	member, err := svc.Get(context.Background(), other.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleMember, member.Role)
	require.False(t, member.CanManage())
}
