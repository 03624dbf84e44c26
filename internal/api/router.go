package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/app"
	iauth "github.com/quackback/quackback/internal/auth"
	"github.com/quackback/quackback/internal/auth/mfa"
	"github.com/quackback/quackback/internal/handlers"
	"github.com/quackback/quackback/internal/middleware"
	"github.com/quackback/quackback/internal/realtime"
	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/internal/tenant"
	"github.com/quackback/quackback/pkg/mail"
)

// Dependencies carries everything the router wires together.
type Dependencies struct {
	DB       *gorm.DB
	Config   *app.Config
	Resolver *tenant.Resolver

	JWT        *iauth.JWTService
	Sessions   *iauth.SessionService
	Password   *iauth.PasswordAuthenticator
	LoginCodes *iauth.LoginCodeService
	SSO        *iauth.SSOService
	MFA        *mfa.TOTPService

	Mailer    mail.Mailer
	RateStore middleware.RateStore
	Feed      *realtime.ActivityFeed

	Organizations *services.OrganizationService
	Boards        *services.BoardService
	Posts         *services.PostService
	Comments      *services.CommentService
	Statuses      *services.StatusService
	Tags          *services.TagService
	Roadmaps      *services.RoadmapService
	Members       *services.MemberService
	Invites       *services.InviteService
	Webhooks      *services.WebhookService
	Integrations  *services.IntegrationService
	Export        *services.ExportService
	Import        *services.ImportService
	Setup         *services.SetupService
	Audit         *services.AuditService
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("api: database handle must be provided")
	case d.Config == nil:
		return fmt.Errorf("api: config must be provided")
	case d.Resolver == nil:
		return fmt.Errorf("api: tenant resolver must be provided")
	case d.JWT == nil || d.Sessions == nil:
		return fmt.Errorf("api: auth services must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine and registers every route. The returned
// engine expects to run behind middleware.StripTenantPrefix; use NewHandler
// for a ready-to-serve handler.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if cfg.Server.CSRF.Enabled {
		r.Use(middleware.CSRF())
	}

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}
	r.Use(middleware.RateLimit(rateStore, 300, time.Minute))

	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(deps.DB))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	requireAuth := middleware.Auth(deps.JWT)
	optionalAuth := middleware.OptionalAuth(deps.JWT)
	resolveTenant := middleware.Tenant(deps.Resolver)
	attachMember := middleware.AttachMember(deps.Members)
	requireMember := middleware.RequireMember(deps.Members)
	requireManager := middleware.RequireManager(deps.Members)

	// Login endpoints get a tighter budget than the rest of the API.
	authLimit := middleware.RateLimit(rateStore, 20, time.Minute)

	setupHandler := handlers.NewSetupHandler(deps.Setup)
	setup := r.Group("/api/setup")
	{
		setup.GET("/status", setupHandler.Status)
		setup.POST("/initialize", authLimit, setupHandler.Initialize)
	}

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Sessions, deps.Password, deps.LoginCodes, deps.MFA, deps.Mailer, cfg.Email.SMTP.From)
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authLimit, middleware.OptionalTenant(deps.Resolver), authHandler.Login)
		auth.POST("/code/request", authLimit, authHandler.RequestLoginCode)
		auth.POST("/code/verify", authLimit, middleware.OptionalTenant(deps.Resolver), authHandler.VerifyLoginCode)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/me", requireAuth, authHandler.Me)
		auth.POST("/logout", requireAuth, authHandler.Logout)
	}

	if deps.MFA != nil {
		mfaHandler := handlers.NewMFAHandler(deps.DB, deps.MFA)
		mfaRoutes := r.Group("/api/auth/mfa", requireAuth)
		{
			mfaRoutes.GET("", mfaHandler.Status)
			mfaRoutes.POST("/setup", mfaHandler.Setup)
			mfaRoutes.POST("/verify", mfaHandler.Verify)
			mfaRoutes.DELETE("", mfaHandler.Disable)
		}
	}

	if deps.SSO != nil {
		ssoHandler := handlers.NewSSOHandler(deps.SSO)
		sso := r.Group("/api/auth/sso", resolveTenant)
		{
			sso.GET("/begin", ssoHandler.Begin)
			sso.GET("/callback", ssoHandler.Callback)
		}
	}

	inviteHandler := handlers.NewInviteHandler(deps.Invites, deps.Sessions)
	r.POST("/api/invitations/redeem", authLimit, inviteHandler.Redeem)

	integrationHandler := handlers.NewIntegrationHandler(deps.Integrations)
	// The OAuth state carries the organization; no tenant resolution here.
	r.GET("/api/integrations/:provider/callback", integrationHandler.Callback)
	// Inbound deliveries authenticate with a signature, not a session.
	r.POST("/api/integrations/:provider/inbound", resolveTenant, integrationHandler.Inbound)

	orgHandler := handlers.NewOrganizationHandler(deps.Organizations)
	boardHandler := handlers.NewBoardHandler(deps.Boards)
	postHandler := handlers.NewPostHandler(deps.Posts, deps.Boards)
	commentHandler := handlers.NewCommentHandler(deps.Comments)
	statusHandler := handlers.NewStatusHandler(deps.Statuses)
	tagHandler := handlers.NewTagHandler(deps.Tags)
	roadmapHandler := handlers.NewRoadmapHandler(deps.Roadmaps)

	// Portal routes: tenant-scoped, readable by anyone, membership attached
	// when the caller is on the team.
	portal := r.Group("/api", resolveTenant, optionalAuth, attachMember)
	{
		portal.GET("/organization", orgHandler.Get)
		portal.GET("/organization/logo", orgHandler.Logo)
		portal.GET("/boards", boardHandler.List)
		portal.GET("/boards/:id", boardHandler.Get)
		portal.GET("/posts", postHandler.List)
		portal.GET("/posts/:id", postHandler.Get)
		portal.GET("/posts/:id/comments", commentHandler.ListByPost)
		portal.GET("/statuses", statusHandler.List)
		portal.GET("/tags", tagHandler.List)
		portal.GET("/roadmaps", roadmapHandler.List)
		portal.GET("/roadmaps/:id", roadmapHandler.Get)
		portal.GET("/roadmaps/:id/columns", roadmapHandler.Columns)
	}

	// Portal actions: any signed-in user, member or not.
	actions := r.Group("/api", resolveTenant, requireAuth, attachMember)
	{
		actions.POST("/posts", postHandler.Create)
		actions.PATCH("/posts/:id", postHandler.Update)
		actions.DELETE("/posts/:id", postHandler.Delete)
		actions.GET("/posts/:id/vote", postHandler.HasVoted)
		actions.POST("/posts/:id/vote", postHandler.Vote)
		actions.DELETE("/posts/:id/vote", postHandler.Unvote)
		actions.POST("/posts/:id/comments", commentHandler.Create)
		actions.PATCH("/comments/:id", commentHandler.Update)
		actions.DELETE("/comments/:id", commentHandler.Delete)
		actions.POST("/comments/:id/reactions", commentHandler.ToggleReaction)
	}

	memberHandler := handlers.NewMemberHandler(deps.Members)
	auditHandler := handlers.NewAuditHandler(deps.Audit)
	webhookHandler := handlers.NewWebhookHandler(deps.Webhooks)
	transferHandler := handlers.NewTransferHandler(deps.Export, deps.Import)

	// Team routes: any member of the organization.
	team := r.Group("/api", resolveTenant, requireAuth, requireMember)
	{
		team.GET("/members", memberHandler.List)
		team.GET("/integrations", integrationHandler.List)
	}
	if deps.Feed != nil && cfg.Features.ActivityFeed.Enabled {
		realtimeHandler := handlers.NewRealtimeHandler(deps.Feed)
		team.GET("/realtime", realtimeHandler.Activity)
	}

	// Admin routes: owners and admins only.
	admin := r.Group("/api", resolveTenant, requireAuth, requireManager)
	{
		admin.PATCH("/organization", orgHandler.Update)
		admin.PUT("/organization/logo", orgHandler.UploadLogo)
		admin.GET("/organization/domains", orgHandler.ListDomains)
		admin.POST("/organization/domains", orgHandler.AddDomain)
		admin.POST("/organization/domains/:id/verify", orgHandler.VerifyDomain)
		admin.DELETE("/organization/domains/:id", orgHandler.RemoveDomain)

		admin.POST("/boards", boardHandler.Create)
		admin.PATCH("/boards/:id", boardHandler.Update)
		admin.DELETE("/boards/:id", boardHandler.Delete)

		admin.PUT("/posts/:id/status", postHandler.ChangeStatus)

		admin.POST("/statuses", statusHandler.Create)
		admin.PATCH("/statuses/:id", statusHandler.Update)
		admin.DELETE("/statuses/:id", statusHandler.Delete)

		admin.POST("/tags", tagHandler.Create)
		admin.PATCH("/tags/:id", tagHandler.Update)
		admin.DELETE("/tags/:id", tagHandler.Delete)

		admin.POST("/roadmaps", roadmapHandler.Create)
		admin.PATCH("/roadmaps/:id", roadmapHandler.Update)
		admin.DELETE("/roadmaps/:id", roadmapHandler.Delete)

		admin.PUT("/members/:userID/role", memberHandler.UpdateRole)
		admin.DELETE("/members/:userID", memberHandler.Remove)

		admin.POST("/invitations", inviteHandler.Create)
		admin.GET("/invitations", inviteHandler.List)
		admin.DELETE("/invitations/:id", inviteHandler.Revoke)

		admin.POST("/webhooks", webhookHandler.Create)
		admin.GET("/webhooks", webhookHandler.List)
		admin.PATCH("/webhooks/:id", webhookHandler.Update)
		admin.DELETE("/webhooks/:id", webhookHandler.Delete)

		admin.POST("/integrations/:provider/connect", integrationHandler.Connect)
		admin.PATCH("/integrations/:provider", integrationHandler.UpdateSettings)
		admin.DELETE("/integrations/:provider", integrationHandler.Disconnect)

		admin.GET("/export/posts", transferHandler.ExportPosts)
		admin.POST("/import/posts", transferHandler.ImportPosts)

		admin.GET("/audit-logs", auditHandler.List)
	}

	return r, nil
}

// NewHandler wraps the engine with the tenant prefix rewriter so path-based
// portals ("/org/<slug>/...") resolve before routing.
func NewHandler(deps Dependencies) (http.Handler, error) {
	r, err := NewRouter(deps)
	if err != nil {
		return nil, err
	}
	return middleware.StripTenantPrefix(r), nil
}
