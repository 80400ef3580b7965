package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus is the lifecycle state of a queued run
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusSkipped JobStatus = "SKIPPED"
)

// JobKind names one of the billing batch jobs. The kind doubles as the
// name of the cluster lock.
type JobKind string

const (
	JobMonthlyInvoices JobKind = "monthly_invoices"
	JobPaymentReminder JobKind = "payment_reminders"
	JobYearlyBilling   JobKind = "yearly_billing"
)

// AllJobKinds returns every job the trigger knows how to schedule
func AllJobKinds() []JobKind {
	return []JobKind{JobMonthlyInvoices, JobPaymentReminder, JobYearlyBilling}
}

// Task runs one job. A non-nil error marks the run failed and eligible
// for retry.
type Task func(ctx context.Context, triggeredBy string) error

// Job is one queued run of a task
type Job struct {
	ID          uuid.UUID
	Kind        JobKind
	TriggeredBy string
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a pending run
func NewJob(kind JobKind, triggeredBy string, maxRetries int) *Job {
	return &Job{
		ID:          uuid.New(),
		Kind:        kind,
		TriggeredBy: triggeredBy,
		Status:      JobStatusPending,
		MaxRetries:  maxRetries,
	}
}

// Start marks the run as in progress and clears any previous error
func (j *Job) Start() {
	now := time.Now()
	j.Status, j.StartedAt, j.Error = JobStatusRunning, &now, ""
}

func (j *Job) Complete()          { j.end(JobStatusSuccess, "") }
func (j *Job) Fail(err string)    { j.end(JobStatusFailed, err) }
func (j *Job) Skip(reason string) { j.end(JobStatusSkipped, reason) }

func (j *Job) end(status JobStatus, msg string) {
	now := time.Now()
	j.Status, j.CompletedAt, j.Error = status, &now, msg
}

// ShouldRetry reports whether a failed run has attempts left
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts the run back to pending, due after delay
func (j *Job) ScheduleRetry(delay time.Duration) {
	next := time.Now().Add(delay)
	j.RetryCount++
	j.Status, j.NextRetryAt, j.Error = JobStatusPending, &next, ""
}

func (j *Job) fields() []zap.Field {
	return []zap.Field{zap.String("job_id", j.ID.String()), zap.String("job", string(j.Kind))}
}
