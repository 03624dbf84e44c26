package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/database/testutil"
	"github.com/quackback/quackback/internal/middleware"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	db    *gorm.DB
	org   *models.Organization
	user  *models.User
	audit *services.AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	org := &models.Organization{Name: "Acme", Slug: "acme"}
	require.NoError(t, db.Create(org).Error)

	user := &models.User{Email: "owner@acme.test", Name: "Owner", IsActive: true}
	require.NoError(t, db.Create(user).Error)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	return &testEnv{db: db, org: org, user: user, audit: audit}
}

// identity injects the context the tenant, auth, and membership middleware
// would have resolved for a request.
func (e *testEnv) identity(member *models.Member) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxOrgKey, e.org)
		c.Set(middleware.CtxOrgIDKey, e.org.ID)
		c.Set(middleware.CtxUserIDKey, e.user.ID)
		if member != nil {
			c.Set(middleware.CtxMemberKey, member)
			c.Set(middleware.CtxMemberRoleKey, member.Role)
		}
		c.Next()
	}
}

func (e *testEnv) asMember(t *testing.T, role string) *models.Member {
	t.Helper()

	member := &models.Member{OrganizationID: e.org.ID, UserID: e.user.ID, Role: role}
	require.NoError(t, e.db.Create(member).Error)
	return member
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	env := decodeEnvelope(t, rec)
	require.True(t, env.Success, "expected success envelope, body: %s", rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
