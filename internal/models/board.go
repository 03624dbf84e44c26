package models

// Board is a named category of feedback posts within an organization.
type Board struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index;uniqueIndex:idx_boards_org_slug" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"not null;uniqueIndex:idx_boards_org_slug" json:"slug"`
	Description string `json:"description"`

	// Private boards are visible to team members only.
	Private bool `gorm:"default:false" json:"private"`

	Position int `gorm:"default:0" json:"position"`

	Posts []Post `gorm:"foreignKey:BoardID" json:"posts,omitempty"`
}
