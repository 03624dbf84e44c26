package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/api"
	"github.com/quackback/quackback/internal/app"
	"github.com/quackback/quackback/internal/app/maintenance"
	iauth "github.com/quackback/quackback/internal/auth"
	"github.com/quackback/quackback/internal/auth/mfa"
	"github.com/quackback/quackback/internal/cache"
	"github.com/quackback/quackback/internal/integrations"
	"github.com/quackback/quackback/internal/middleware"
	"github.com/quackback/quackback/internal/realtime"
	"github.com/quackback/quackback/internal/secrets"
	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/internal/tenant"
	"github.com/quackback/quackback/pkg/mail"
)

// runtimeStack bundles the long-lived pieces behind the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   cache.Store
	Cleaner *maintenance.Cleaner
	Handler http.Handler
}

// bootstrapRuntime initialises the database, caches, services, and the HTTP
// handler chain.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}
	stack.DB = db

	if sqlDB, dbErr := db.DB(); dbErr == nil {
		if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
			return nil, fmt.Errorf("ping database: %w", pingErr)
		}
	}

	dbStore := cache.NewDatabaseStore(db)
	store := cache.Store(dbStore)
	if cfg.Cache.Redis.Enabled {
		redis, redisErr := cache.NewRedisStore(cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; using database-backed cache", zap.Error(redisErr))
		} else {
			stack.Redis = redis
			store = redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	encryptionKey, err := app.DecodeKey(cfg.Secrets.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode secrets encryption key: %w", err)
	}
	secretsEngine, err := secrets.NewCrypto(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("initialise secrets engine: %w", err)
	}

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewSessionStoreCache(store)
	sessions, err := iauth.NewSessionService(db, jwtService, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	password, err := iauth.NewPasswordAuthenticator(db, cfg.Auth.PasswordPolicy())
	if err != nil {
		return nil, fmt.Errorf("initialise password authenticator: %w", err)
	}
	loginCodes, err := iauth.NewLoginCodeService(db, cfg.Auth.LoginCodeServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise login code service: %w", err)
	}

	stateCodec, err := iauth.NewStateCodec(encryptionKey, 10*time.Minute, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise sso state codec: %w", err)
	}
	sso, err := iauth.NewSSOService(db, sessions, stateCodec, secretsEngine, iauth.OIDCOptions{})
	if err != nil {
		return nil, fmt.Errorf("initialise sso service: %w", err)
	}

	totp, err := mfa.NewTOTPService(db, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("initialise totp service: %w", err)
	}

	resolver, err := tenant.NewResolver(db, store, tenant.Config{
		BaseDomain:   cfg.Tenant.BaseDomain,
		PathPrefix:   cfg.Tenant.PathPrefix,
		SingleTenant: cfg.Tenant.SingleTenant,
		CacheTTL:     cfg.Tenant.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise tenant resolver: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(db, sessions, audit)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	orgs, err := services.NewOrganizationService(db, audit,
		services.WithDomainInvalidator(resolver))
	if err != nil {
		return nil, fmt.Errorf("initialise organization service: %w", err)
	}

	webhooks, err := services.NewWebhookService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise webhook service: %w", err)
	}

	var feed *realtime.ActivityFeed
	emitters := services.MultiEmitter{webhooks}
	if cfg.Features.ActivityFeed.Enabled {
		feed = realtime.NewActivityFeed(realtime.NewHub())
		emitters = append(emitters, feed)
	}

	posts, err := services.NewPostService(db, audit, services.WithPostEvents(emitters))
	if err != nil {
		return nil, fmt.Errorf("initialise post service: %w", err)
	}

	boards, err := services.NewBoardService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise board service: %w", err)
	}
	comments, err := services.NewCommentService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise comment service: %w", err)
	}
	statuses, err := services.NewStatusService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise status service: %w", err)
	}
	tags, err := services.NewTagService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise tag service: %w", err)
	}
	roadmaps, err := services.NewRoadmapService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise roadmap service: %w", err)
	}
	members, err := services.NewMemberService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise member service: %w", err)
	}
	invites, err := services.NewInviteService(db, audit,
		services.WithInviteMailer(mailer))
	if err != nil {
		return nil, fmt.Errorf("initialise invite service: %w", err)
	}

	catalog := integrations.NewRegistry(oauthCredentials(cfg), cfg.Server.PublicURL)
	integrationSvc, err := services.NewIntegrationService(db, audit, catalog, secretsEngine, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("initialise integration service: %w", err)
	}

	export, err := services.NewExportService(db)
	if err != nil {
		return nil, fmt.Errorf("initialise export service: %w", err)
	}
	importOpts := []services.ImportOption{}
	if cfg.Features.Import.MaxRows > 0 {
		importOpts = append(importOpts, services.WithImportMaxRows(cfg.Features.Import.MaxRows))
	}
	importer, err := services.NewImportService(db, audit, importOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise import service: %w", err)
	}

	setup, err := services.NewSetupService(db, orgs, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise setup service: %w", err)
	}

	handler, err := api.NewHandler(api.Dependencies{
		DB:            db,
		Config:        cfg,
		Resolver:      resolver,
		JWT:           jwtService,
		Sessions:      sessions,
		Password:      password,
		LoginCodes:    loginCodes,
		SSO:           sso,
		MFA:           totp,
		Mailer:        mailer,
		RateStore:     middleware.NewStoreRateStore(store),
		Feed:          feed,
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
		Integrations:  integrationSvc,
		Export:        export,
		Import:        importer,
		Setup:         setup,
		Audit:         audit,
	})
	if err != nil {
		return nil, fmt.Errorf("build api handler: %w", err)
	}
	stack.Handler = handler

	success = true
	return stack, nil
}

// Shutdown releases the stack's resources in reverse order of acquisition.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		// Stop returns a context that completes when in-flight jobs finish.
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs did not stop before deadline")
		}
		s.Cleaner = nil
	}

	if closer, ok := s.Redis.(interface{ Close() error }); ok && closer != nil {
		if err := closer.Close(); err != nil {
			log.Warn("close redis", zap.Error(err))
		}
	}
	s.Redis = nil

	closeDatabase(s.DB, log)
	s.DB = nil
}

func oauthCredentials(cfg *app.Config) map[string]integrations.ClientCredentials {
	creds := make(map[string]integrations.ClientCredentials, len(cfg.Integrations.Providers))
	for name, provider := range cfg.Integrations.Providers {
		creds[name] = integrations.ClientCredentials{
			ClientID:     provider.ClientID,
			ClientSecret: provider.ClientSecret,
		}
	}
	return creds
}
