package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment is a product comment. Replies reference a top-level comment through
// ParentID; replies themselves never have replies.
type Comment struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	ProductID string    `gorm:"type:text;not null;index" json:"product_id"`
	AuthorID  string    `gorm:"type:text;not null" json:"author_id"`
	ParentID  *string   `gorm:"type:text;index" json:"parent_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate generates a UUID for the comment if none is set.
func (c *Comment) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// IsReply reports whether the comment is nested under another one.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}
