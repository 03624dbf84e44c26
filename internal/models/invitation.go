package models

import "time"

// Invitation represents a pending invite for a prospective team member.
type Invitation struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Email      string     `gorm:"not null;index" json:"email"`
	Role       string     `gorm:"not null;default:member" json:"role"`
	TokenHash  string     `gorm:"not null" json:"-"`
	InvitedBy  string     `gorm:"type:uuid" json:"invited_by"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at"`
}
