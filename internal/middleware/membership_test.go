package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/database/testutil"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/services"
)

func membershipRouter(t *testing.T, db *gorm.DB, userID, orgID string, roles ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	members, err := services.NewMemberService(db, audit)
	require.NoError(t, err)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(CtxUserIDKey, userID)
		}
		c.Set(CtxOrgIDKey, orgID)
	})
	r.Use(RequireMember(members, roles...))
	r.GET("/admin", func(c *gin.Context) {
		member := MemberFromContext(c)
		c.JSON(http.StatusOK, gin.H{"role": member.Role})
	})
	return r
}

func TestRequireMember(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	org := &models.Organization{Name: "Acme", Slug: "acme"}
	require.NoError(t, db.Create(org).Error)
	user := &models.User{Email: "member@example.com", Name: "Member", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.Member{
		OrganizationID: org.ID, UserID: user.ID, Role: models.RoleAdmin,
	}).Error)

	// Any-member gate passes and exposes the role.
	r := membershipRouter(t, db, user.ID, org.ID)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"role":"admin"`)

	// Role-restricted gate accepts a matching role.
	r = membershipRouter(t, db, user.ID, org.ID, models.RoleOwner, models.RoleAdmin)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// A role outside the allowed set is rejected.
	r = membershipRouter(t, db, user.ID, org.ID, models.RoleOwner)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireMemberRejectsOutsiders(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	org := &models.Organization{Name: "Acme", Slug: "acme"}
	require.NoError(t, db.Create(org).Error)
	outsider := &models.User{Email: "outsider@example.com", Name: "Outsider", IsActive: true}
	require.NoError(t, db.Create(outsider).Error)

	// A user without a membership row is forbidden.
	r := membershipRouter(t, db, outsider.ID, org.ID)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	// An unauthenticated request is unauthorized.
	r = membershipRouter(t, db, "", org.ID)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
