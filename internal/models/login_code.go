package models

import "time"

// LoginCode is a short-lived email sign-in code for portal users. Only the
// SHA-256 hash of the code is stored.
type LoginCode struct {
	BaseModel

	Email    string `gorm:"not null;index" json:"email"`
	CodeHash string `gorm:"not null" json:"-"`

	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	ConsumedAt *time.Time `json:"-"`

	// Attempts counts failed verifications; the code is invalidated after the
	// limit is reached.
	Attempts int `gorm:"default:0" json:"-"`
}
