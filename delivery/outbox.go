package delivery

import (
	"fmt"
	"time"

	"newsletter-backend/models"

	"gorm.io/gorm"
)

// InsertIssue stores the immutable newsletter issue inside the caller's
// transaction and returns its generated id.
func InsertIssue(tx *gorm.DB, title, htmlContent, textContent string) (string, error) {
	issue := models.NewsletterIssue{
		Title:       title,
		HTMLContent: htmlContent,
		TextContent: textContent,
		PublishedAt: time.Now().UTC(),
	}
	if err := tx.Create(&issue).Error; err != nil {
		return "", fmt.Errorf("storing newsletter issue: %w", err)
	}
	return issue.Id, nil
}

// EnqueueForConfirmedSubscribers fans the issue out into one delivery task per
// confirmed subscriber in a single set-based insert, on the same transaction
// that claimed the idempotency key. Any failure rolls the whole publish back;
// there is no half-published state to recover from here.
func EnqueueForConfirmedSubscribers(tx *gorm.DB, issueId string, now time.Time) error {
	err := tx.Exec(`
		INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email, next_retry, times_attempted)
		SELECT ?, email, ?, 0 FROM subscriptions WHERE status = ?`,
		issueId, now, models.SubscriptionConfirmed,
	).Error
	if err != nil {
		return fmt.Errorf("enqueueing delivery tasks: %w", err)
	}
	return nil
}
