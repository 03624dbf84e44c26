package models

// SsoProvider configures single sign-on for an organization's team members.
// Only OIDC providers are supported.
type SsoProvider struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index;uniqueIndex:idx_sso_org_type" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Type    string `gorm:"not null;uniqueIndex:idx_sso_org_type" json:"type"`
	Name    string `gorm:"not null" json:"name"`
	Enabled bool   `gorm:"default:false" json:"enabled"`

	// Config is an encrypted JSON blob; the client secret never leaves the
	// server in cleartext.
	Config string `gorm:"type:text" json:"-"`

	CreatedBy string `gorm:"type:uuid" json:"created_by"`
}

// OIDCConfig is the decrypted shape of an OIDC provider configuration.
type OIDCConfig struct {
	Issuer       string   `json:"issuer"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURL  string   `json:"redirect_url"`
	Scopes       []string `json:"scopes"`
}
