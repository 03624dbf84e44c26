package models

// Comment is a threaded reply on a post. Threading is capped at one level:
// a comment may reference a parent, but replies to replies are rejected.
type Comment struct {
	BaseModel

	PostID string `gorm:"type:uuid;not null;index" json:"post_id"`
	Post   *Post  `json:"post,omitempty"`

	AuthorID string `gorm:"type:uuid;not null;index" json:"author_id"`
	Author   *User  `json:"author,omitempty"`

	ParentID *string  `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Parent   *Comment `gorm:"foreignKey:ParentID" json:"-"`

	Body string `gorm:"not null" json:"body"`

	// Internal comments are member-only triage notes hidden from the portal.
	Internal bool `gorm:"default:false" json:"internal"`

	Replies   []Comment  `gorm:"foreignKey:ParentID" json:"replies,omitempty"`
	Reactions []Reaction `gorm:"foreignKey:CommentID" json:"reactions,omitempty"`
}

// Reaction is an emoji reaction on a comment. One row per (comment, user, emoji).
type Reaction struct {
	BaseModel

	CommentID string   `gorm:"type:uuid;not null;index;uniqueIndex:idx_reactions_comment_user_emoji" json:"comment_id"`
	Comment   *Comment `json:"comment,omitempty"`

	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_reactions_comment_user_emoji" json:"user_id"`
	User   *User  `json:"user,omitempty"`

	Emoji string `gorm:"not null;uniqueIndex:idx_reactions_comment_user_emoji" json:"emoji"`
}
