package models

// Tag is an org-scoped label attached to posts.
type Tag struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index;uniqueIndex:idx_tags_org_slug" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Name  string `gorm:"not null" json:"name"`
	Slug  string `gorm:"not null;uniqueIndex:idx_tags_org_slug" json:"slug"`
	Color string `json:"color"`

	Posts []Post `gorm:"many2many:post_tags;" json:"posts,omitempty"`
}
