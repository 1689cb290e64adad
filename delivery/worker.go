package delivery

import (
	"context"
	"time"

	"newsletter-backend/email"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Outcome reports what a single worker iteration did.
type Outcome int

const (
	// OutcomeEmptyQueue means no task was ready; the worker backs off with
	// the idle sleep before polling again.
	OutcomeEmptyQueue Outcome = iota
	// OutcomeTaskCompleted means a delivery succeeded; the worker loops
	// immediately to drain the backlog.
	OutcomeTaskCompleted
	// OutcomeRecipientPurged means the task's address was syntactically
	// invalid and every task for it was removed.
	OutcomeRecipientPurged
)

var addressCheck = validator.New()

// Worker drains the delivery queue: one task per iteration, each attempt its
// own transaction. Any number of workers may run against the same queue; the
// SKIP LOCKED dequeue keeps them from ever seeing the same task twice.
type Worker struct {
	queue  *Queue
	sender email.Sender
	log    zerolog.Logger

	idleSleep  time.Duration
	errorSleep time.Duration
	retryDelay DelayFunc
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithIdleSleep sets the pause after finding the queue empty. Default 10s.
func WithIdleSleep(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d >= 0 {
			w.idleSleep = d
		}
	}
}

// WithErrorSleep sets the pause after a failed iteration, bounding the polling
// rate when a dependency (mail relay, database) is persistently down.
// Default 1s.
func WithErrorSleep(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d >= 0 {
			w.errorSleep = d
		}
	}
}

// WithRetryDelay sets the requeue delay policy applied after a failed send.
// Default is Fixed(1s); Exponential is available when the relay needs gentler
// treatment.
func WithRetryDelay(fn DelayFunc) WorkerOption {
	return func(w *Worker) {
		if fn != nil {
			w.retryDelay = fn
		}
	}
}

func NewWorker(queue *Queue, sender email.Sender, log zerolog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:      queue,
		sender:     sender,
		log:        log,
		idleSleep:  10 * time.Second,
		errorSleep: time.Second,
		retryDelay: Fixed(time.Second),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls the queue until ctx is cancelled. The shutdown check sits between
// iterations, never inside one, so an in-flight transaction always commits or
// rolls back cleanly.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		outcome, err := w.ProcessOne(ctx)
		switch {
		case err != nil, outcome == OutcomeRecipientPurged:
			// Purges count as iteration failures for backoff purposes.
			if !w.sleep(ctx, w.errorSleep) {
				return
			}
		case outcome == OutcomeEmptyQueue:
			if !w.sleep(ctx, w.idleSleep) {
				return
			}
		default:
			// Task completed: keep draining.
		}
	}
}

// ProcessOne executes a single iteration of the state machine:
// dequeue, validate the recipient, fetch the issue, attempt the send, then
// complete, requeue or purge. Errors are returned after the queue state has
// already been settled (requeued or rolled back).
func (w *Worker) ProcessOne(ctx context.Context) (Outcome, error) {
	task, err := w.queue.DequeueOne()
	if err != nil {
		return OutcomeEmptyQueue, err
	}
	if task == nil {
		return OutcomeEmptyQueue, nil
	}

	if err := addressCheck.Var(task.Email, "required,email"); err != nil {
		w.log.Warn().
			Str("subscriber_email", task.Email).
			Str("newsletter_issue_id", task.IssueId).
			Msg("stored recipient address is invalid, purging their tasks")
		if err := w.queue.PurgeRecipient(task); err != nil {
			return OutcomeEmptyQueue, err
		}
		return OutcomeRecipientPurged, nil
	}

	issue, err := w.queue.GetIssue(task)
	if err != nil {
		task.Tx.Rollback() // unlock the row; another poll will pick it up
		return OutcomeEmptyQueue, err
	}

	if err := w.sender.Send(ctx, task.Email, issue.Title, issue.HTMLContent, issue.TextContent); err != nil {
		delay := w.retryDelay(task.TimesAttempted)
		w.log.Error().
			Err(err).
			Str("subscriber_email", task.Email).
			Str("newsletter_issue_id", task.IssueId).
			Dur("retry_in", delay).
			Msg("failed to deliver issue to a confirmed subscriber")
		if err := w.queue.Requeue(task, delay); err != nil {
			return OutcomeEmptyQueue, err
		}
		return OutcomeEmptyQueue, err
	}

	if err := w.queue.Complete(task); err != nil {
		return OutcomeEmptyQueue, err
	}

	w.log.Info().
		Str("subscriber_email", task.Email).
		Str("newsletter_issue_id", task.IssueId).
		Msg("issue delivered")
	return OutcomeTaskCompleted, nil
}

// sleep waits for d or until ctx is cancelled; false means shutdown.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d == 0 {
		return ctx.Err() == nil
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-tmr.C:
		return true
	}
}
