package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/application/txn"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReminderResult summarises one reminder run
type ReminderResult struct {
	Period      invoice.Period `json:"period"`
	Ran         bool           `json:"ran"`
	DaysOverdue int            `json:"days_overdue"`
	Candidates  int            `json:"candidates"`
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	Errors      int            `json:"errors"`
	Flagged     int64          `json:"flagged"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
}

// ReminderService flags unpaid invoices of the previous month
type ReminderService struct {
	scope     txn.TransactionScope
	reminders reminder.Repository
	reader    property.Reader
	publisher shared.EventPublisher
	observer  job.Observer
	logger    *zap.Logger
	startDay  int
	now       func() time.Time
}

// NewReminderService creates a new ReminderService. A startDay below 1 uses
// reminder.DefaultStartDay.
func NewReminderService(
	scope txn.TransactionScope,
	reminders reminder.Repository,
	reader property.Reader,
	publisher shared.EventPublisher,
	observer job.Observer,
	logger *zap.Logger,
	startDay int,
) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = job.NopObserver{}
	}
	if startDay < 1 {
		startDay = reminder.DefaultStartDay
	}
	return &ReminderService{
		scope:     scope,
		reminders: reminders,
		reader:    reader,
		publisher: publisher,
		observer:  observer,
		logger:    logger,
		startDay:  startDay,
		now:       time.Now,
	}
}

// WithClock overrides the time source
func (s *ReminderService) WithClock(now func() time.Time) *ReminderService {
	s.now = now
	return s
}

// Run scans the previous period for issued, unpaid invoices and upserts one
// reminder each. Before the start day it does nothing.
func (s *ReminderService) Run(ctx context.Context, triggeredBy string) *ReminderResult {
	now := s.now()
	period := invoice.PeriodOf(now).Previous()
	result := &ReminderResult{Period: period, Success: true}
	if !reminder.ShouldRun(now, s.startDay) {
		s.logger.Debug("reminder run skipped before start day", zap.Int("day", now.Day()))
		return result
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "reminders", "run")
	defer span.End()
	telemetry.SetAttributes(span, "period", period.String(), "triggered_by", triggeredBy)

	result.Ran = true
	result.DaysOverdue = reminder.DaysOverdue(now)
	tally := job.NewTally(0)
	var issued []*reminder.Reminder

	err := s.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		unpaid, err := repos.Invoices().FindUnpaidIssued(ctx, period)
		if err != nil {
			return fmt.Errorf("load unpaid invoices: %w", err)
		}

		processed := make([]uuid.UUID, 0, len(unpaid))
		tally = job.Fold(unpaid, func(inv invoice.Invoice) job.Outcome {
			var outcome job.Outcome
			err := repos.Savepoint(ctx, func(sp txn.TransactionalRepositories) error {
				r, kind, err := s.upsert(ctx, sp.Reminders(), &inv, result.DaysOverdue, now)
				if err != nil {
					return err
				}
				outcome = job.Outcome{Kind: kind}
				issued = append(issued, r)
				processed = append(processed, inv.ID)
				return nil
			})
			if err != nil {
				s.logger.Warn("failed to write reminder",
					zap.String("invoice_id", inv.ID.String()),
					zap.Error(err),
				)
				return job.Outcome{Kind: job.Failed, Err: fmt.Errorf("invoice %s: %w", inv.InvoiceNumber, err)}
			}
			return outcome
		})

		if len(processed) > 0 {
			result.Flagged, err = repos.Invoices().MarkReminded(ctx, processed, now)
			if err != nil {
				return fmt.Errorf("flag reminded invoices: %w", err)
			}
		}
		return repos.JobRuns().Create(ctx, job.NewRun(job.NameReminders, now, tally, nil, triggeredBy))
	})

	result.Candidates = tally.Candidates
	result.Errors = tally.Errors
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("reminder run failed", zap.Error(err))
		run := job.NewRun(job.NameReminders, now, job.Tally{Candidates: tally.Candidates, Errors: tally.Errors}, err, triggeredBy)
		recordFailedRun(ctx, s.scope, run, s.logger)
		s.observer.ObserveRun(run)
		result.Flagged = 0
		result.Success = false
		result.Error = err.Error()
		return result
	}

	result.Created = tally.Created
	result.Updated = tally.Updated
	s.observer.ObserveRun(job.NewRun(job.NameReminders, now, tally, nil, triggeredBy))
	s.logger.Info("reminder run finished",
		zap.String("period", period.String()),
		zap.Int("candidates", tally.Candidates),
		zap.Int("created", tally.Created),
		zap.Int("updated", tally.Updated),
		zap.Int("errors", tally.Errors),
	)

	if s.publisher != nil {
		for _, r := range issued {
			if err := s.publisher.Publish(ctx, reminder.NewIssuedEvent(r)); err != nil {
				s.logger.Warn("failed to publish reminder event", zap.Error(err))
			}
		}
	}
	return result
}

func (s *ReminderService) upsert(
	ctx context.Context,
	repo reminder.Repository,
	inv *invoice.Invoice,
	daysOverdue int,
	now time.Time,
) (*reminder.Reminder, job.OutcomeKind, error) {
	existing, err := repo.FindByInvoice(ctx, inv.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		r := reminder.New(inv, daysOverdue, now)
		return r, job.Created, repo.Save(ctx, r)
	case err != nil:
		return nil, job.Failed, err
	}
	existing.Refresh(inv, daysOverdue, now)
	return existing, job.Updated, repo.Save(ctx, existing)
}

// ListRemindersQuery filters a reminder listing
type ListRemindersQuery struct {
	PropertyID *uuid.UUID
	Month      *int
	Year       *int
	Severity   *reminder.Severity
	Page       int
	PageSize   int
}

// List returns reminders visible to the principal
func (s *ReminderService) List(ctx context.Context, p identity.Principal, q ListRemindersQuery) (shared.Paginated[reminder.Reminder], error) {
	filter := reminder.Filter{Filter: shared.DefaultFilter(), PropertyID: q.PropertyID, Severity: q.Severity}
	if q.Page > 0 {
		filter.Page = q.Page
	}
	if q.PageSize > 0 && q.PageSize <= shared.MaxPageSize {
		filter.PageSize = q.PageSize
	}
	if q.Month != nil && q.Year != nil {
		period, err := invoice.NewPeriod(*q.Month, *q.Year)
		if err != nil {
			return shared.Paginated[reminder.Reminder]{}, err
		}
		filter.Period = &period
	}

	if !p.IsAdmin() {
		if q.PropertyID != nil {
			prop, err := s.reader.PropertyByID(ctx, *q.PropertyID)
			if err != nil {
				return shared.Paginated[reminder.Reminder]{}, notFound(err, "Property not found")
			}
			if err := AuthorizeProperty(p, prop); err != nil {
				return shared.Paginated[reminder.Reminder]{}, err
			}
		} else {
			if len(p.PropertyIDs) == 0 {
				return shared.NewPaginated([]reminder.Reminder{}, 0, filter.Page, filter.PageSize), nil
			}
			filter.PropertyIDs = p.PropertyIDs
		}
	}

	items, total, err := s.reminders.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[reminder.Reminder]{}, err
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}
