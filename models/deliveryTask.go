package models

import "time"

// DeliveryTask is one pending "send this issue to this recipient" unit.
// The (issue, email) pair is the natural key; a row disappears when the
// delivery succeeded or the recipient was purged.
type DeliveryTask struct {
	NewsletterIssueId string    `json:"newsletter_issue_id" gorm:"primaryKey;size:36"`
	SubscriberEmail   string    `json:"subscriber_email" gorm:"primaryKey;size:320"`
	NextRetry         time.Time `json:"next_retry" gorm:"not null"`
	TimesAttempted    int       `json:"times_attempted" gorm:"not null;default:0"`
}

func (DeliveryTask) TableName() string { return "issue_delivery_queue" }
