package models

// Post is a feedback entry submitted to a board.
type Post struct {
	BaseModel

	OrganizationID string        `gorm:"type:uuid;not null;index" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`

	BoardID string `gorm:"type:uuid;not null;index" json:"board_id"`
	Board   *Board `json:"board,omitempty"`

	AuthorID string `gorm:"type:uuid;not null;index" json:"author_id"`
	Author   *User  `json:"author,omitempty"`

	Title   string `gorm:"not null" json:"title"`
	Content string `json:"content"`

	StatusID string  `gorm:"type:uuid;not null;index" json:"status_id"`
	Status   *Status `json:"status,omitempty"`

	Pinned bool `gorm:"default:false" json:"pinned"`

	// VoteCount is denormalized and maintained in the same transaction as the
	// Vote row so "top" sorting stays a plain ORDER BY.
	VoteCount int `gorm:"default:0;index" json:"vote_count"`

	Tags     []Tag     `gorm:"many2many:post_tags;" json:"tags,omitempty"`
	Comments []Comment `gorm:"foreignKey:PostID" json:"comments,omitempty"`
	Votes    []Vote    `gorm:"foreignKey:PostID" json:"-"`
}

// Vote marks that a user upvoted a post. One row per (post, user).
type Vote struct {
	BaseModel

	PostID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_votes_post_user" json:"post_id"`
	Post   *Post  `json:"post,omitempty"`

	UserID string `gorm:"type:uuid;not null;index;uniqueIndex:idx_votes_post_user" json:"user_id"`
	User   *User  `json:"user,omitempty"`
}
