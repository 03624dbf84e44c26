package models

// Status categories group statuses into roadmap-friendly buckets.
const (
	StatusCategoryOpen       = "open"
	StatusCategoryPlanned    = "planned"
	StatusCategoryInProgress = "in_progress"
	StatusCategoryDone       = "done"
	StatusCategoryClosed     = "closed"
)

// ValidStatusCategory reports whether the category is one of the known buckets.
func ValidStatusCategory(category string) bool {
	switch category {
	case StatusCategoryOpen, StatusCategoryPlanned, StatusCategoryInProgress,
		StatusCategoryDone, StatusCategoryClosed:
		return true
	}
	return false
}

// Status is an org-scoped workflow state for posts. Exactly one status per
// organization carries IsDefault; the service layer enforces the invariant.
type Status struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index;uniqueIndex:idx_statuses_org_slug" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	Name     string `gorm:"not null" json:"name"`
	Slug     string `gorm:"not null;uniqueIndex:idx_statuses_org_slug" json:"slug"`
	Color    string `json:"color"`
	Category string `gorm:"not null;default:open" json:"category"`

	IsDefault bool `gorm:"default:false" json:"is_default"`
	Position  int  `gorm:"default:0" json:"position"`
}
