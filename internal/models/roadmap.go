package models

import "gorm.io/datatypes"

// Roadmap is a kanban-style grouping of posts by status, shown publicly on the
// portal or privately in the admin dashboard.
type Roadmap struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index;uniqueIndex:idx_roadmaps_org_slug" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"not null;uniqueIndex:idx_roadmaps_org_slug" json:"slug"`

	Public bool `gorm:"default:false" json:"public"`

	// StatusIDs is the ordered list of status column identifiers.
	StatusIDs datatypes.JSON `json:"status_ids"`
}
