package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/job"
)

// JobRunModel records one execution of a batch job.
type JobRunModel struct {
	ID          uuid.UUID    `gorm:"type:uuid;primary_key"`
	Job         string       `gorm:"type:varchar(40);not null;index:idx_job_run_job_started,priority:1"`
	StartedAt   time.Time    `gorm:"not null;index:idx_job_run_job_started,priority:2"`
	FinishedAt  time.Time    `gorm:"not null"`
	Success     bool         `gorm:"not null"`
	Candidates  int          `gorm:"not null;default:0"`
	Created     int          `gorm:"not null;default:0"`
	Updated     int          `gorm:"not null;default:0"`
	Errors      int          `gorm:"not null;default:0"`
	Skipped     JSONMap[int] `gorm:"type:jsonb;not null;default:'{}'"`
	Error       string       `gorm:"type:text"`
	TriggeredBy string       `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (JobRunModel) TableName() string {
	return "batch_job_runs"
}

// JobRunModelFromDomain creates a new persistence model from a domain Run
func JobRunModelFromDomain(r *job.Run) *JobRunModel {
	return &JobRunModel{
		ID:          r.ID,
		Job:         string(r.Job),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Success:     r.Success,
		Candidates:  r.Candidates,
		Created:     r.Created,
		Updated:     r.Updated,
		Errors:      r.Errors,
		Skipped:     JSONMap[int](r.Skipped),
		Error:       r.Error,
		TriggeredBy: r.TriggeredBy,
	}
}

// ToDomain converts the persistence model to a domain Run
func (m *JobRunModel) ToDomain() job.Run {
	return job.Run{
		ID:          m.ID,
		Job:         job.Name(m.Job),
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		Success:     m.Success,
		Candidates:  m.Candidates,
		Created:     m.Created,
		Updated:     m.Updated,
		Errors:      m.Errors,
		Skipped:     map[string]int(m.Skipped),
		Error:       m.Error,
		TriggeredBy: m.TriggeredBy,
	}
}

// AllModels lists every model the billing schema migrates, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&UserModel{},
		&PropertyModel{},
		&PropertyCaretakerModel{},
		&FloorModel{},
		&UnitModel{},
		&TenantModel{},
		&ServiceModel{},
		&ServiceFeeModel{},
		&BillingRateModel{},
		&InvoiceModel{},
		&ReminderModel{},
		&BillingAccountModel{},
		&BillingInvoiceModel{},
		&MpesaTransactionModel{},
		&NotificationModel{},
		&JobRunModel{},
	}
}
