package models

import (
	"time"

	"gorm.io/datatypes"
)

// Organization is a tenant: one customer account with its own portal, boards,
// members, and settings.
type Organization struct {
	BaseModel

	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`

	// Settings holds branding and portal configuration (theme colors, copy).
	Settings datatypes.JSON `json:"settings"`

	Logo         []byte `gorm:"type:bytes" json:"-"`
	LogoMimeType string `json:"-"`

	Members       []Member       `gorm:"foreignKey:OrganizationID" json:"members,omitempty"`
	Boards        []Board        `gorm:"foreignKey:OrganizationID" json:"boards,omitempty"`
	Statuses      []Status       `gorm:"foreignKey:OrganizationID" json:"statuses,omitempty"`
	Tags          []Tag          `gorm:"foreignKey:OrganizationID" json:"tags,omitempty"`
	CustomDomains []CustomDomain `gorm:"foreignKey:OrganizationID" json:"custom_domains,omitempty"`
}

// CustomDomain maps a verified external hostname to an organization's portal.
type CustomDomain struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Hostname          string     `gorm:"uniqueIndex;not null" json:"hostname"`
	VerificationToken string     `gorm:"not null" json:"-"`
	VerifiedAt        *time.Time `json:"verified_at"`
}

// Verified reports whether the domain passed DNS verification.
func (d *CustomDomain) Verified() bool {
	return d.VerifiedAt != nil
}
