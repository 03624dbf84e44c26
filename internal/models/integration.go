package models

import (
	"time"

	"gorm.io/datatypes"
)

// Integration provider identifiers.
const (
	IntegrationSlack   = "slack"
	IntegrationNotion  = "notion"
	IntegrationLinear  = "linear"
	IntegrationClickUp = "clickup"
	IntegrationTrello  = "trello"
	IntegrationAsana   = "asana"
	IntegrationDiscord = "discord"
)

// Integration links an organization to a third-party tracker or messenger via
// OAuth. Credentials are stored AES-GCM encrypted.
type Integration struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index;uniqueIndex:idx_integrations_org_provider" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Provider string `gorm:"not null;uniqueIndex:idx_integrations_org_provider" json:"provider"`
	Enabled  bool   `gorm:"default:true" json:"enabled"`

	// Credentials is the encrypted OAuth token payload.
	Credentials string `gorm:"type:text" json:"-"`

	// Settings holds provider-specific options (target channel, project id ...).
	Settings datatypes.JSON `json:"settings"`

	// WebhookSecret verifies inbound webhook signatures from the provider.
	WebhookSecret string `json:"-"`

	ConnectedBy string     `gorm:"type:uuid" json:"connected_by"`
	ConnectedAt *time.Time `json:"connected_at"`
}

// WebhookTarget is an org-configured URL receiving signed post/status events.
type WebhookTarget struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	URL     string `gorm:"not null" json:"url"`
	Secret  string `gorm:"not null" json:"-"`
	Enabled bool   `gorm:"default:true" json:"enabled"`

	// Events filters deliveries; empty means all events.
	Events datatypes.JSON `json:"events"`

	LastStatus    int        `json:"last_status"`
	LastDelivered *time.Time `json:"last_delivered"`
}
