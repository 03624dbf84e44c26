package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/secrets"
	"github.com/quackback/quackback/pkg/crypto"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

// Sentinel errors for integration operations.
var (
	ErrIntegrationNotFound = errors.New("integration service: integration not found")
	ErrIntegrationState    = errors.New("integration service: invalid oauth state")
)

// integrationStateTTL bounds how long a connect redirect stays redeemable.
const integrationStateTTL = 15 * time.Minute

// OAuthCatalog resolves provider names to their OAuth endpoints. Satisfied by
// integrations.Registry.
type OAuthCatalog interface {
	Has(name string) bool
	AuthCodeURL(name, state string) (string, error)
	Exchange(ctx context.Context, name, code string) (*oauth2.Token, error)
}

// IntegrationService connects organizations to third-party providers via
// OAuth. Token payloads are stored AES-GCM encrypted; the connect state is
// HMAC-signed and expires.
type IntegrationService struct {
	db       *gorm.DB
	audit    *AuditService
	catalog  OAuthCatalog
	crypto   *secrets.Crypto
	stateKey []byte
	now      func() time.Time
}

// IntegrationOption customises the service.
type IntegrationOption func(*IntegrationService)

// WithIntegrationClock overrides the time source, used in tests.
func WithIntegrationClock(now func() time.Time) IntegrationOption {
	return func(s *IntegrationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewIntegrationService constructs an IntegrationService. The state key signs
// OAuth redirect state; the crypto engine encrypts stored credentials.
func NewIntegrationService(db *gorm.DB, audit *AuditService, catalog OAuthCatalog, cryptoEngine *secrets.Crypto, stateKey []byte, opts ...IntegrationOption) (*IntegrationService, error) {
	if db == nil {
		return nil, errors.New("integration service: db is required")
	}
	if catalog == nil {
		return nil, errors.New("integration service: provider catalog is required")
	}
	if cryptoEngine == nil {
		return nil, errors.New("integration service: crypto engine is required")
	}
	if len(stateKey) == 0 {
		return nil, errors.New("integration service: state key is required")
	}
	svc := &IntegrationService{
		db:       db,
		audit:    audit,
		catalog:  catalog,
		crypto:   cryptoEngine,
		stateKey: stateKey,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

type integrationState struct {
	OrgID     string `json:"o"`
	Provider  string `json:"p"`
	UserID    string `json:"u"`
	Nonce     string `json:"n"`
	ExpiresAt int64  `json:"exp"`
}

// Connect starts the OAuth flow and returns the provider redirect URL.
func (s *IntegrationService) Connect(ctx context.Context, orgID, provider, userID string) (string, error) {
	ctx = ensureContext(ctx)

	provider = strings.ToLower(strings.TrimSpace(provider))
	if !s.catalog.Has(provider) {
		return "", apperrors.NewNotFound("integration.unknown_provider", "This provider is not configured")
	}

	nonce, err := crypto.GenerateToken(16)
	if err != nil {
		return "", fmt.Errorf("integration service: generate nonce: %w", err)
	}

	state, err := s.encodeState(integrationState{
		OrgID:     orgID,
		Provider:  provider,
		UserID:    userID,
		Nonce:     nonce,
		ExpiresAt: s.now().UTC().Add(integrationStateTTL).Unix(),
	})
	if err != nil {
		return "", err
	}

	redirect, err := s.catalog.AuthCodeURL(provider, state)
	if err != nil {
		return "", fmt.Errorf("integration service: build redirect: %w", err)
	}
	return redirect, nil
}

// Callback finishes the OAuth flow: the state is verified, the code exchanged,
// and the token payload stored encrypted on the org's integration row.
func (s *IntegrationService) Callback(ctx context.Context, state, code string) (*models.Integration, error) {
	ctx = ensureContext(ctx)

	payload, err := s.decodeState(state)
	if err != nil {
		return nil, err
	}
	if s.now().UTC().Unix() > payload.ExpiresAt {
		return nil, ErrIntegrationState
	}

	token, err := s.catalog.Exchange(ctx, payload.Provider, code)
	if err != nil {
		return nil, fmt.Errorf("integration service: %w", err)
	}

	credentials, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("integration service: marshal token: %w", err)
	}
	encrypted, err := s.crypto.Encrypt(credentials)
	if err != nil {
		return nil, fmt.Errorf("integration service: encrypt credentials: %w", err)
	}
	webhookSecret, err := crypto.GenerateToken(32)
	if err != nil {
		return nil, fmt.Errorf("integration service: generate webhook secret: %w", err)
	}

	connectedAt := s.now().UTC()
	integration := &models.Integration{
		OrganizationID: payload.OrgID,
		Provider:       payload.Provider,
		Enabled:        true,
		Credentials:    encrypted,
		Settings:       datatypes.JSON([]byte("{}")),
		WebhookSecret:  webhookSecret,
		ConnectedBy:    payload.UserID,
		ConnectedAt:    &connectedAt,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Integration
		err := tx.First(&existing, "organization_id = ? AND provider = ?", payload.OrgID, payload.Provider).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(integration).Error
		case err != nil:
			return err
		default:
			updates := map[string]any{
				"enabled":      true,
				"credentials":  encrypted,
				"connected_by": payload.UserID,
				"connected_at": connectedAt,
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
			*integration = existing
			integration.Enabled = true
			integration.Credentials = encrypted
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("integration service: store integration: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: payload.OrgID,
		UserID:         &payload.UserID,
		Action:         "integration.connect",
		Resource:       payload.Provider,
		Result:         "success",
	})
	return integration, nil
}

// List returns the organization's integrations. Credentials stay encrypted and
// are never exposed here.
func (s *IntegrationService) List(ctx context.Context, orgID string) ([]models.Integration, error) {
	ctx = ensureContext(ctx)

	var integrations []models.Integration
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("provider ASC").
		Find(&integrations).Error
	if err != nil {
		return nil, fmt.Errorf("integration service: list integrations: %w", err)
	}
	return integrations, nil
}

// Get fetches one integration by provider name.
func (s *IntegrationService) Get(ctx context.Context, orgID, provider string) (*models.Integration, error) {
	ctx = ensureContext(ctx)

	var integration models.Integration
	err := s.db.WithContext(ctx).
		First(&integration, "organization_id = ? AND provider = ?", orgID, strings.ToLower(provider)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("integration service: get integration: %w", err)
	}
	return &integration, nil
}

// Token decrypts and returns the stored OAuth token for outbound calls.
func (s *IntegrationService) Token(ctx context.Context, orgID, provider string) (*oauth2.Token, error) {
	integration, err := s.Get(ctx, orgID, provider)
	if err != nil {
		return nil, err
	}
	if !integration.Enabled || integration.Credentials == "" {
		return nil, ErrIntegrationNotFound
	}

	raw, err := s.crypto.Decrypt(integration.Credentials)
	if err != nil {
		return nil, fmt.Errorf("integration service: decrypt credentials: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("integration service: decode token: %w", err)
	}
	return &token, nil
}

// UpdateSettings replaces the provider-specific settings document.
func (s *IntegrationService) UpdateSettings(ctx context.Context, orgID, provider string, settings map[string]any) (*models.Integration, error) {
	ctx = ensureContext(ctx)

	integration, err := s.Get(ctx, orgID, provider)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("integration service: marshal settings: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(integration).
		Update("settings", datatypes.JSON(raw)).Error; err != nil {
		return nil, fmt.Errorf("integration service: update settings: %w", err)
	}
	integration.Settings = datatypes.JSON(raw)
	return integration, nil
}

// Disconnect disables the integration and wipes its stored credentials.
func (s *IntegrationService) Disconnect(ctx context.Context, orgID, provider string) error {
	ctx = ensureContext(ctx)

	integration, err := s.Get(ctx, orgID, provider)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"enabled":      false,
		"credentials":  "",
		"connected_at": nil,
	}
	if err := s.db.WithContext(ctx).Model(integration).Updates(updates).Error; err != nil {
		return fmt.Errorf("integration service: disconnect integration: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "integration.disconnect",
		Resource:       integration.Provider,
		Result:         "success",
	})
	return nil
}

// VerifyInboundSignature checks a provider webhook signature against the
// integration's secret in constant time.
func (s *IntegrationService) VerifyInboundSignature(ctx context.Context, orgID, provider string, body []byte, signature string) (bool, error) {
	integration, err := s.Get(ctx, orgID, provider)
	if err != nil {
		return false, err
	}
	if integration.WebhookSecret == "" {
		return false, nil
	}
	return crypto.VerifyHMAC(body, []byte(integration.WebhookSecret), signature), nil
}

func (s *IntegrationService) encodeState(payload integrationState) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("integration service: marshal state: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	signature := crypto.SignHMAC([]byte(encoded), s.stateKey)
	return encoded + "." + signature, nil
}

func (s *IntegrationService) decodeState(state string) (*integrationState, error) {
	encoded, signature, ok := strings.Cut(state, ".")
	if !ok || !crypto.VerifyHMAC([]byte(encoded), s.stateKey, signature) {
		return nil, ErrIntegrationState
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrIntegrationState
	}
	var payload integrationState
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrIntegrationState
	}
	if payload.OrgID == "" || payload.Provider == "" {
		return nil, ErrIntegrationState
	}
	return &payload, nil
}
