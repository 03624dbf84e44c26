package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/secrets"
	"github.com/quackback/quackback/pkg/crypto"
)

var (
	// ErrSSONotConfigured indicates the organization has no enabled OIDC provider.
	ErrSSONotConfigured = errors.New("sso: not configured")
	// ErrSSOEmailRequired indicates the upstream identity did not supply an email address.
	ErrSSOEmailRequired = errors.New("sso: email is required")
	// ErrSSOUserDisabled signals that the mapped account is inactive.
	ErrSSOUserDisabled = errors.New("sso: user disabled")
)

// SSOService coordinates the OIDC login flow for organization team members:
// building per-org clients from encrypted provider configs, round-tripping
// encrypted state, and mapping asserted identities to members.
type SSOService struct {
	db       *gorm.DB
	sessions *SessionService
	codec    *StateCodec
	crypto   *secrets.Crypto
	opts     OIDCOptions
	clock    func() time.Time

	mu      sync.Mutex
	clients map[string]*cachedOIDCClient
}

type cachedOIDCClient struct {
	client    *OIDCClient
	updatedAt time.Time
}

// NewSSOService constructs an SSOService.
func NewSSOService(db *gorm.DB, sessions *SessionService, codec *StateCodec, sc *secrets.Crypto, opts OIDCOptions) (*SSOService, error) {
	if db == nil {
		return nil, errors.New("sso service: db is required")
	}
	if sessions == nil {
		return nil, errors.New("sso service: session service is required")
	}
	if codec == nil {
		return nil, errors.New("sso service: state codec is required")
	}
	if sc == nil {
		return nil, errors.New("sso service: secrets crypto is required")
	}

	clock := time.Now
	if opts.Now != nil {
		clock = opts.Now
	}

	return &SSOService{
		db:       db,
		sessions: sessions,
		codec:    codec,
		crypto:   sc,
		opts:     opts,
		clock:    clock,
		clients:  make(map[string]*cachedOIDCClient),
	}, nil
}

// BeginResult carries the redirect target and the PKCE verifier the caller
// must stash in a cookie for the callback leg.
type BeginResult struct {
	RedirectURL  string
	State        string
	PKCEVerifier string
}

// Begin starts the OIDC flow for an organization, returning the provider redirect URL.
func (s *SSOService) Begin(ctx context.Context, orgID, returnURL string) (*BeginResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	provider, cfg, err := s.loadProvider(ctx, orgID)
	if err != nil {
		return nil, err
	}

	client, err := s.clientFor(ctx, provider, cfg)
	if err != nil {
		return nil, err
	}

	nonce, err := crypto.GenerateToken(24)
	if err != nil {
		return nil, fmt.Errorf("sso service: generate nonce: %w", err)
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, fmt.Errorf("sso service: %w", err)
	}

	state, err := s.codec.Encode(StatePayload{
		OrgID:     provider.OrganizationID,
		Provider:  provider.Type,
		ReturnURL: strings.TrimSpace(returnURL),
		Nonce:     nonce,
		PKCE:      pkce.Challenge,
	})
	if err != nil {
		return nil, fmt.Errorf("sso service: encode state: %w", err)
	}

	redirect, err := client.AuthCodeURL(state, nonce, pkce.Challenge)
	if err != nil {
		return nil, fmt.Errorf("sso service: %w", err)
	}

	return &BeginResult{
		RedirectURL:  redirect,
		State:        state,
		PKCEVerifier: pkce.Verifier,
	}, nil
}

// CallbackResult carries the session material and resolved user for a completed flow.
type CallbackResult struct {
	Tokens    TokenPair
	User      *models.User
	Member    *models.Member
	Session   *models.Session
	ReturnURL string
}

// Callback completes the OIDC flow: decodes state, redeems the code, maps the
// identity to a team member (provisioning one on first login), and issues a session.
func (s *SSOService) Callback(ctx context.Context, state, code, pkceVerifier string, meta SessionMetadata) (*CallbackResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := s.codec.Decode(state)
	if err != nil {
		return nil, err
	}

	provider, cfg, err := s.loadProvider(ctx, payload.OrgID)
	if err != nil {
		return nil, err
	}

	client, err := s.clientFor(ctx, provider, cfg)
	if err != nil {
		return nil, err
	}

	identity, err := client.Exchange(ctx, code, pkceVerifier, payload.Nonce)
	if err != nil {
		return nil, err
	}

	user, member, err := s.resolveMember(ctx, provider.OrganizationID, identity)
	if err != nil {
		return nil, err
	}

	meta.OrgID = provider.OrganizationID
	meta.Role = member.Role

	tokens, session, err := s.sessions.CreateForSubject(AuthSubject{
		UserID:     user.ID,
		Provider:   provider.Type,
		ExternalID: identity.Subject,
		Email:      identity.Email,
	}, meta)
	if err != nil {
		return nil, fmt.Errorf("sso service: create session: %w", err)
	}

	now := s.clock()
	lastIP := strings.TrimSpace(meta.IPAddress)
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": lastIP,
	}).Error; err == nil {
		user.LastLoginAt = &now
		user.LastLoginIP = lastIP
	}

	return &CallbackResult{
		Tokens:    tokens,
		User:      user,
		Member:    member,
		Session:   session,
		ReturnURL: payload.ReturnURL,
	}, nil
}

func (s *SSOService) loadProvider(ctx context.Context, orgID string) (*models.SsoProvider, models.OIDCConfig, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, models.OIDCConfig{}, errors.New("sso service: org id is required")
	}

	var provider models.SsoProvider
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND enabled = ?", orgID, true).
		Take(&provider).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.OIDCConfig{}, ErrSSONotConfigured
	}
	if err != nil {
		return nil, models.OIDCConfig{}, fmt.Errorf("sso service: load provider: %w", err)
	}

	raw, err := s.crypto.Decrypt(provider.Config)
	if err != nil {
		return nil, models.OIDCConfig{}, fmt.Errorf("sso service: decrypt provider config: %w", err)
	}

	var cfg models.OIDCConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, models.OIDCConfig{}, fmt.Errorf("sso service: decode provider config: %w", err)
	}

	return &provider, cfg, nil
}

func (s *SSOService) clientFor(ctx context.Context, provider *models.SsoProvider, cfg models.OIDCConfig) (*OIDCClient, error) {
	s.mu.Lock()
	cached, ok := s.clients[provider.ID]
	if ok && cached.updatedAt.Equal(provider.UpdatedAt) {
		s.mu.Unlock()
		return cached.client, nil
	}
	s.mu.Unlock()

	client, err := NewOIDCClient(ctx, cfg, s.opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.clients[provider.ID] = &cachedOIDCClient{client: client, updatedAt: provider.UpdatedAt}
	s.mu.Unlock()

	return client, nil
}

func (s *SSOService) resolveMember(ctx context.Context, orgID string, identity *Identity) (*models.User, *models.Member, error) {
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		return nil, nil, ErrSSOEmailRequired
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Email:    email,
			Name:     strings.TrimSpace(identity.Name),
			IsActive: true,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, nil, fmt.Errorf("sso service: create user: %w", err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("sso service: find user: %w", err)
	}

	if !user.IsActive {
		return nil, nil, ErrSSOUserDisabled
	}

	var member models.Member
	err = s.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, user.ID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		member = models.Member{
			OrganizationID: orgID,
			UserID:         user.ID,
			Role:           models.RoleMember,
		}
		if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
			return nil, nil, fmt.Errorf("sso service: create member: %w", err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("sso service: find member: %w", err)
	}

	return &user, &member, nil
}
