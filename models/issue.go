package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewsletterIssue is immutable once published: the delivery queue references
// it by id while the fan-out is in flight.
type NewsletterIssue struct {
	Id          string    `json:"id" gorm:"primaryKey"`
	Title       string    `json:"title" gorm:"not null"`
	HTMLContent string    `json:"html_content" gorm:"not null"`
	TextContent string    `json:"text_content" gorm:"not null"`
	PublishedAt time.Time `json:"published_at" gorm:"not null"`
}

func (NewsletterIssue) TableName() string { return "newsletter_issues" }

func (issue *NewsletterIssue) BeforeCreate(tx *gorm.DB) (err error) {
	issue.Id = uuid.NewString()
	return
}
