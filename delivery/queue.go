package delivery

import (
	"fmt"
	"time"

	"newsletter-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Queue is the durable delivery work queue. Mutual exclusion between
// concurrent consumers comes entirely from the database's row locks: a
// dequeue locks its row FOR UPDATE and skips rows locked by other workers,
// so no application-level coordination is needed.
type Queue struct {
	db *gorm.DB
}

func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Task is one dequeued delivery unit. Tx is the open transaction holding the
// row lock; exactly one of Requeue, Complete or PurgeRecipient must follow,
// or the transaction must be rolled back (which simply unlocks the row).
type Task struct {
	Tx             *gorm.DB
	IssueId        string
	Email          string
	TimesAttempted int
}

// DequeueOne picks the ready task with the smallest next_retry, locking its
// row while skipping rows locked by concurrent workers. Returns (nil, nil)
// when no task is ready.
func (q *Queue) DequeueOne() (*Task, error) {
	tx := q.db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("beginning dequeue transaction: %w", tx.Error)
	}

	stmt := tx.Model(&models.DeliveryTask{}).
		Where("next_retry <= ?", time.Now().UTC()).
		Order("next_retry ASC").
		Limit(1)
	// SKIP LOCKED needs a dialect with row locks; the sqlite test dialect
	// serializes writers on its own.
	if tx.Dialector.Name() == "postgres" {
		stmt = stmt.Clauses(clause.Locking{
			Strength: clause.LockingStrengthUpdate,
			Options:  clause.LockingOptionsSkipLocked,
		})
	}

	var tasks []models.DeliveryTask
	if err := stmt.Find(&tasks).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("dequeueing delivery task: %w", err)
	}
	if len(tasks) == 0 {
		tx.Rollback()
		return nil, nil
	}

	return &Task{
		Tx:             tx,
		IssueId:        tasks[0].NewsletterIssueId,
		Email:          tasks[0].SubscriberEmail,
		TimesAttempted: tasks[0].TimesAttempted,
	}, nil
}

// Requeue pushes the task's next_retry forward by delay and commits; the task
// stays in the queue for a later attempt.
func (q *Queue) Requeue(task *Task, delay time.Duration) error {
	err := task.Tx.Model(&models.DeliveryTask{}).
		Where("newsletter_issue_id = ? AND subscriber_email = ?", task.IssueId, task.Email).
		Updates(map[string]any{
			"next_retry":      time.Now().UTC().Add(delay),
			"times_attempted": gorm.Expr("times_attempted + 1"),
		}).Error
	if err != nil {
		task.Tx.Rollback()
		return fmt.Errorf("requeueing delivery task: %w", err)
	}
	if err := task.Tx.Commit().Error; err != nil {
		return fmt.Errorf("committing requeue: %w", err)
	}
	return nil
}

// Complete removes the finished task and commits.
func (q *Queue) Complete(task *Task) error {
	err := task.Tx.
		Where("newsletter_issue_id = ? AND subscriber_email = ?", task.IssueId, task.Email).
		Delete(&models.DeliveryTask{}).Error
	if err != nil {
		task.Tx.Rollback()
		return fmt.Errorf("deleting delivery task: %w", err)
	}
	if err := task.Tx.Commit().Error; err != nil {
		return fmt.Errorf("committing task deletion: %w", err)
	}
	return nil
}

// PurgeRecipient removes every task for the task's email address across all
// issues and commits. Used when the address itself is permanently invalid, so
// one bad recipient can neither be retried forever nor block their other
// pending issues.
func (q *Queue) PurgeRecipient(task *Task) error {
	err := task.Tx.
		Where("subscriber_email = ?", task.Email).
		Delete(&models.DeliveryTask{}).Error
	if err != nil {
		task.Tx.Rollback()
		return fmt.Errorf("purging recipient tasks: %w", err)
	}
	if err := task.Tx.Commit().Error; err != nil {
		return fmt.Errorf("committing recipient purge: %w", err)
	}
	return nil
}

// GetIssue loads the issue content for a dequeued task, read-only, on the
// task's own transaction.
func (q *Queue) GetIssue(task *Task) (*models.NewsletterIssue, error) {
	var issue models.NewsletterIssue
	if err := task.Tx.First(&issue, "id = ?", task.IssueId).Error; err != nil {
		return nil, fmt.Errorf("loading issue %s: %w", task.IssueId, err)
	}
	return &issue, nil
}
