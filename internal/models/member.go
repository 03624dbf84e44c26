package models

// Member roles, ordered from most to least privileged.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ValidRole reports whether the role string is one of the known member roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Member links a user to an organization with a team role. Portal users have
// no Member row; their access is scoped by the resolved tenant alone.
type Member struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index;uniqueIndex:idx_members_org_user" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	UserID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_members_org_user" json:"user_id"`
	User   *User  `json:"user,omitempty"`

	Role string `gorm:"not null;default:member" json:"role"`
}

// CanManage reports whether the member may administer organization settings,
// members, and integrations.
func (m *Member) CanManage() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}
