package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/crypto"
	apperrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/logger"
	"github.com/quackback/quackback/pkg/metrics"
)

// Sentinel errors for webhook operations.
var (
	ErrWebhookNotFound   = errors.New("webhook service: target not found")
	ErrWebhookURLBlocked = errors.New("webhook service: target url blocked")
)

// signatureHeader carries the HMAC-SHA256 signature of the delivery body.
const signatureHeader = "X-Quackback-Signature"

const (
	defaultWebhookTimeout = 10 * time.Second
	webhookSecretBytes    = 32
)

// WebhookService manages per-org webhook targets and delivers signed events
// to them. Target URLs pass an SSRF guard before they are stored or called.
type WebhookService struct {
	db       *gorm.DB
	audit    *AuditService
	client   *http.Client
	resolver func(ctx context.Context, host string) ([]net.IP, error)
	now      func() time.Time
	async    bool

	// allowPrivate disables the address checks for self-hosted deployments
	// that deliver to internal hosts.
	allowPrivate bool
}

// WebhookOption customises the service.
type WebhookOption func(*WebhookService)

// WithWebhookHTTPClient overrides the delivery client.
func WithWebhookHTTPClient(client *http.Client) WebhookOption {
	return func(s *WebhookService) {
		if client != nil {
			s.client = client
		}
	}
}

// WithWebhookResolver overrides DNS resolution for the SSRF guard, used in
// tests.
func WithWebhookResolver(resolver func(ctx context.Context, host string) ([]net.IP, error)) WebhookOption {
	return func(s *WebhookService) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithSynchronousDelivery makes Emit deliver inline instead of spawning a
// goroutine, used in tests.
func WithSynchronousDelivery() WebhookOption {
	return func(s *WebhookService) {
		s.async = false
	}
}

// WithWebhookPrivateTargets disables the SSRF address checks. Meant for
// self-hosted installations delivering to hosts on their own network.
func WithWebhookPrivateTargets() WebhookOption {
	return func(s *WebhookService) {
		s.allowPrivate = true
	}
}

// WithWebhookClock overrides the time source, used in tests.
func WithWebhookClock(now func() time.Time) WebhookOption {
	return func(s *WebhookService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewWebhookService constructs a WebhookService.
func NewWebhookService(db *gorm.DB, audit *AuditService, opts ...WebhookOption) (*WebhookService, error) {
	if db == nil {
		return nil, errors.New("webhook service: db is required")
	}
	svc := &WebhookService{
		db:    db,
		audit: audit,
		client: &http.Client{
			Timeout: defaultWebhookTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		resolver: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, addr := range addrs {
				ips = append(ips, addr.IP)
			}
			return ips, nil
		},
		now:   time.Now,
		async: true,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateWebhookInput carries fields for a new target.
type CreateWebhookInput struct {
	URL    string `validate:"required,url"`
	Events []string
}

// Create registers a webhook target. A fresh signing secret is generated and
// returned once on the stored record.
func (s *WebhookService) Create(ctx context.Context, orgID string, input CreateWebhookInput) (*models.WebhookTarget, error) {
	ctx = ensureContext(ctx)

	if err := s.validateTargetURL(ctx, input.URL); err != nil {
		return nil, err
	}

	secret, err := crypto.GenerateToken(webhookSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("webhook service: generate secret: %w", err)
	}

	events := datatypes.JSON([]byte("[]"))
	if len(input.Events) > 0 {
		raw, err := json.Marshal(normaliseIDs(input.Events))
		if err != nil {
			return nil, fmt.Errorf("webhook service: marshal events: %w", err)
		}
		events = datatypes.JSON(raw)
	}

	target := &models.WebhookTarget{
		OrganizationID: orgID,
		URL:            input.URL,
		Secret:         secret,
		Enabled:        true,
		Events:         events,
	}
	if err := s.db.WithContext(ctx).Create(target).Error; err != nil {
		return nil, fmt.Errorf("webhook service: create target: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "webhook.create",
		Resource:       input.URL,
		Result:         "success",
	})
	return target, nil
}

// GetByID fetches one target scoped to the organization.
func (s *WebhookService) GetByID(ctx context.Context, orgID, targetID string) (*models.WebhookTarget, error) {
	ctx = ensureContext(ctx)

	var target models.WebhookTarget
	err := s.db.WithContext(ctx).
		First(&target, "id = ? AND organization_id = ?", targetID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("webhook service: get target: %w", err)
	}
	return &target, nil
}

// List returns the organization's webhook targets.
func (s *WebhookService) List(ctx context.Context, orgID string) ([]models.WebhookTarget, error) {
	ctx = ensureContext(ctx)

	var targets []models.WebhookTarget
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&targets).Error
	if err != nil {
		return nil, fmt.Errorf("webhook service: list targets: %w", err)
	}
	return targets, nil
}

// UpdateWebhookInput carries optional fields; nil means leave unchanged.
type UpdateWebhookInput struct {
	URL     *string `validate:"omitempty,url"`
	Enabled *bool
	Events  []string
}

// Update applies partial changes to a target.
func (s *WebhookService) Update(ctx context.Context, orgID, targetID string, input UpdateWebhookInput) (*models.WebhookTarget, error) {
	ctx = ensureContext(ctx)

	target, err := s.GetByID(ctx, orgID, targetID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.URL != nil {
		if err := s.validateTargetURL(ctx, *input.URL); err != nil {
			return nil, err
		}
		updates["url"] = *input.URL
	}
	if input.Enabled != nil {
		updates["enabled"] = *input.Enabled
	}
	if input.Events != nil {
		raw, err := json.Marshal(normaliseIDs(input.Events))
		if err != nil {
			return nil, fmt.Errorf("webhook service: marshal events: %w", err)
		}
		updates["events"] = datatypes.JSON(raw)
	}
	if len(updates) == 0 {
		return target, nil
	}

	if err := s.db.WithContext(ctx).Model(target).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("webhook service: update target: %w", err)
	}
	return s.GetByID(ctx, orgID, targetID)
}

// Delete removes a target.
func (s *WebhookService) Delete(ctx context.Context, orgID, targetID string) error {
	ctx = ensureContext(ctx)

	target, err := s.GetByID(ctx, orgID, targetID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(target).Error; err != nil {
		return fmt.Errorf("webhook service: delete target: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		Action:         "webhook.delete",
		Resource:       target.URL,
		Result:         "success",
	})
	return nil
}

// Emit delivers the event to every enabled target subscribed to it. Delivery
// is best effort; failures are recorded on the target row, never returned.
func (s *WebhookService) Emit(ctx context.Context, orgID, event string, payload map[string]any) {
	targets, err := s.List(ensureContext(ctx), orgID)
	if err != nil {
		logger.WithModule("webhooks").Warn("failed to load webhook targets", zap.Error(err))
		return
	}

	for i := range targets {
		target := targets[i]
		if !target.Enabled || !targetWantsEvent(&target, event) {
			continue
		}
		if s.async {
			go s.deliver(context.Background(), &target, event, payload)
		} else {
			s.deliver(ensureContext(ctx), &target, event, payload)
		}
	}
}

// deliver posts one signed event to one target and records the outcome.
func (s *WebhookService) deliver(ctx context.Context, target *models.WebhookTarget, event string, payload map[string]any) {
	body, err := json.Marshal(map[string]any{
		"event":      event,
		"created_at": s.now().UTC().Format(time.RFC3339),
		"data":       payload,
	})
	if err != nil {
		logger.WithModule("webhooks").Warn("failed to encode webhook payload", zap.Error(err))
		return
	}

	if err := s.validateTargetURL(ctx, target.URL); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("blocked").Inc()
		s.recordDelivery(ctx, target, 0)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, crypto.SignHMAC(body, []byte(target.Secret)))

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
		s.recordDelivery(ctx, target, 0)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.WebhookDeliveries.WithLabelValues("success").Inc()
	} else {
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
	}
	s.recordDelivery(ctx, target, resp.StatusCode)
}

func (s *WebhookService) recordDelivery(ctx context.Context, target *models.WebhookTarget, status int) {
	deliveredAt := s.now().UTC()
	err := s.db.WithContext(ctx).Model(&models.WebhookTarget{}).
		Where("id = ?", target.ID).
		Updates(map[string]any{"last_status": status, "last_delivered": deliveredAt}).Error
	if err != nil {
		logger.WithModule("webhooks").Warn("failed to record webhook delivery", zap.Error(err))
	}
}

// validateTargetURL is the SSRF guard: only http(s) URLs whose host resolves
// to public unicast addresses are allowed.
func (s *WebhookService) validateTargetURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return apperrors.NewBadRequest("Invalid webhook URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return apperrors.NewBadRequest("Webhook URLs must use http or https")
	}

	host := parsed.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if !s.allowPrivate && isForbiddenAddress(ip) {
			return ErrWebhookURLBlocked
		}
		return nil
	}

	ips, err := s.resolver(ensureContext(ctx), host)
	if err != nil || len(ips) == 0 {
		return apperrors.NewBadRequest("Webhook host does not resolve")
	}
	if s.allowPrivate {
		return nil
	}
	for _, ip := range ips {
		if isForbiddenAddress(ip) {
			return ErrWebhookURLBlocked
		}
	}
	return nil
}

// isForbiddenAddress rejects loopback, private, link-local, unspecified, and
// cloud metadata addresses.
func isForbiddenAddress(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	return ip.Equal(net.ParseIP("169.254.169.254"))
}

func targetWantsEvent(target *models.WebhookTarget, event string) bool {
	if len(target.Events) == 0 {
		return true
	}
	var events []string
	if err := json.Unmarshal(target.Events, &events); err != nil {
		return true
	}
	if len(events) == 0 {
		return true
	}
	return containsString(events, event)
}
