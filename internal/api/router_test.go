package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/app"
	iauth "github.com/quackback/quackback/internal/auth"
	"github.com/quackback/quackback/internal/cache"
	"github.com/quackback/quackback/internal/database/testutil"
	"github.com/quackback/quackback/internal/secrets"
	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/internal/tenant"
	"github.com/quackback/quackback/pkg/crypto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noopCatalog struct{}

func (noopCatalog) Has(string) bool                        { return false }
func (noopCatalog) AuthCodeURL(string, string) (string, error) { return "", services.ErrIntegrationState }
func (noopCatalog) Exchange(context.Context, string, string) (*oauth2.Token, error) {
	return nil, services.ErrIntegrationState
}

func newTestHandler(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	cfg := &app.Config{}
	cfg.Server.PublicURL = "http://feedback.test"
	cfg.Tenant.BaseDomain = "feedback.test"
	cfg.Monitoring.Health.Enabled = true

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	orgs, err := services.NewOrganizationService(db, audit)
	require.NoError(t, err)
	boards, err := services.NewBoardService(db, audit)
	require.NoError(t, err)
	posts, err := services.NewPostService(db, audit)
	require.NoError(t, err)
	comments, err := services.NewCommentService(db, audit)
	require.NoError(t, err)
	statuses, err := services.NewStatusService(db, audit)
	require.NoError(t, err)
	tags, err := services.NewTagService(db, audit)
	require.NoError(t, err)
	roadmaps, err := services.NewRoadmapService(db, audit)
	require.NoError(t, err)
	members, err := services.NewMemberService(db, audit)
	require.NoError(t, err)
	invites, err := services.NewInviteService(db, audit)
	require.NoError(t, err)
	webhooks, err := services.NewWebhookService(db, audit)
	require.NoError(t, err)
	export, err := services.NewExportService(db)
	require.NoError(t, err)
	importer, err := services.NewImportService(db, audit)
	require.NoError(t, err)
	setup, err := services.NewSetupService(db, orgs, audit)
	require.NoError(t, err)

	engine, err := secrets.NewCrypto([]byte("0123456789abcdef0123456789abcdef"),
		secrets.WithArgon2Parameters(crypto.Argon2Parameters{
			Memory:    8 * 1024,
			Time:      1,
			Threads:   1,
			KeyLength: 32,
		}))
	require.NoError(t, err)
	integrations, err := services.NewIntegrationService(db, audit, noopCatalog{}, engine, []byte("state-key"))
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-test-secret"})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)
	password, err := iauth.NewPasswordAuthenticator(db, iauth.PasswordConfig{})
	require.NoError(t, err)
	codes, err := iauth.NewLoginCodeService(db, iauth.LoginCodeConfig{})
	require.NoError(t, err)

	resolver, err := tenant.NewResolver(db, cache.NewDatabaseStore(db), tenant.Config{
		BaseDomain: "feedback.test",
		CacheTTL:   time.Minute,
	})
	require.NoError(t, err)

	handler, err := NewHandler(Dependencies{
		DB:            db,
		Config:        cfg,
		Resolver:      resolver,
		JWT:           jwtSvc,
		Sessions:      sessions,
		Password:      password,
		LoginCodes:    codes,
		Organizations: orgs,
		Boards:        boards,
		Posts:         posts,
		Comments:      comments,
		Statuses:      statuses,
		Tags:          tags,
		Roadmaps:      roadmaps,
		Members:       members,
		Invites:       invites,
		Webhooks:      webhooks,
		Integrations:  integrations,
		Export:        export,
		Import:        importer,
		Setup:         setup,
		Audit:         audit,
	})
	require.NoError(t, err)
	return handler, db
}

func postJSON(t *testing.T, handler http.Handler, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getJSON(handler http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestRouterSetupLoginAndTenantAccess(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := postJSON(t, handler, "http://feedback.test/api/setup/initialize", gin.H{
		"organization_name": "Acme",
		"organization_slug": "acme",
		"admin_email":       "founder@acme.test",
		"admin_name":        "Founder",
		"admin_password":    "correct-horse-battery",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = postJSON(t, handler, "http://feedback.test/api/auth/login", gin.H{
		"email":    "founder@acme.test",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	token := data["tokens"].(map[string]any)["access_token"].(string)

	// Subdomain tenancy.
	rec = getJSON(handler, "http://acme.feedback.test/api/boards", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Path tenancy hits the same routes via the prefix rewriter.
	rec = getJSON(handler, "http://feedback.test/org/acme/api/organization", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Admin routes need membership resolved from the token's user.
	rec = postJSON(t, handler, "http://acme.feedback.test/api/boards", gin.H{"name": "Ideas"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "http://acme.feedback.test/api/boards",
		bytes.NewReader([]byte(`{"name":"Ideas"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRouterUnknownTenantIs404(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := getJSON(handler, "http://ghost.feedback.test/api/boards", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterHealth(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := getJSON(handler, "http://feedback.test/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
