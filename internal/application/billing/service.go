// Package billing runs the developer billing engine: one platform invoice
// per developer per month, consolidating every active property.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/propledger/backend/internal/application/txn"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultCutoffDay is the last day of a month on which a new property is
// still billed for that month
const DefaultCutoffDay = 15

// Skip reasons reported by RegenerateYear
const (
	SkipDuplicate  = "duplicate"
	SkipUpToDate   = "upToDate"
	SkipNotJanuary = "notJanuary"
)

var validate = validator.New()

// EnsurePropertyCommand registers a newly activated property for billing
type EnsurePropertyCommand struct {
	DeveloperID  uuid.UUID `json:"developer_id" validate:"required"`
	PropertyID   uuid.UUID `json:"property_id" validate:"required"`
	PropertyName string    `json:"property_name" validate:"required,max=200"`
}

// EnsureResult reports what EnsureForNewProperty touched
type EnsureResult struct {
	Year       int `json:"year"`
	StartMonth int `json:"start_month"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Unchanged  int `json:"unchanged"`
}

// RegenerateResult summarises a yearly regeneration run
type RegenerateResult struct {
	Year       int            `json:"year"`
	Force      bool           `json:"force"`
	Ran        bool           `json:"ran"`
	Developers int            `json:"developers"`
	Accounts   int            `json:"accounts"`
	Created    int            `json:"created"`
	Deleted    int64          `json:"deleted"`
	Rebuilt    int            `json:"rebuilt"`
	Errors     int            `json:"errors"`
	Skipped    map[string]int `json:"skipped"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
}

// ChangeRateCommand sets a new platform rate
type ChangeRateCommand struct {
	Amount        decimal.Decimal `json:"amount"`
	EffectiveFrom *time.Time      `json:"effective_from"`
}

// ChangeRateResult reports the effect of a rate change
type ChangeRateResult struct {
	Rate            decimal.Decimal `json:"rate"`
	EffectiveFrom   time.Time       `json:"effective_from"`
	AccountsUpdated int64           `json:"accounts_updated"`
	InvoicesPatched int             `json:"invoices_patched"`
}

// InvoiceView is a billing invoice with its display status
type InvoiceView struct {
	billing.Invoice
	DisplayStatus billing.Status `json:"display_status"`
}

// ListInvoicesQuery filters a billing invoice listing
type ListInvoicesQuery struct {
	DeveloperID *uuid.UUID
	Year        *int
	Month       *int
	IsPaid      *bool
	Page        int
	PageSize    int
}

// Service is the developer billing engine
type Service struct {
	scope     txn.TransactionScope
	accounts  billing.AccountRepository
	invoices  billing.InvoiceRepository
	reader    property.Reader
	registry  pricing.Registry
	observer  job.Observer
	logger    *zap.Logger
	cutoffDay int
	now       func() time.Time
}

// NewService creates a new billing Service. A cutoffDay below 1 uses
// DefaultCutoffDay.
func NewService(
	scope txn.TransactionScope,
	accounts billing.AccountRepository,
	invoices billing.InvoiceRepository,
	reader property.Reader,
	registry pricing.Registry,
	observer job.Observer,
	logger *zap.Logger,
	cutoffDay int,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = job.NopObserver{}
	}
	if cutoffDay < 1 {
		cutoffDay = DefaultCutoffDay
	}
	return &Service{
		scope:     scope,
		accounts:  accounts,
		invoices:  invoices,
		reader:    reader,
		registry:  registry,
		observer:  observer,
		logger:    logger,
		cutoffDay: cutoffDay,
		now:       time.Now,
	}
}

// WithClock overrides the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// EnsureForNewProperty bills a newly activated property from its start month
// through December. Missing months are created for every active property,
// unpaid months gain the property and paid months are left alone.
func (s *Service) EnsureForNewProperty(ctx context.Context, p identity.Principal, cmd EnsurePropertyCommand) (*EnsureResult, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, shared.ErrInvalidInput.WithMessage(err.Error())
	}
	if err := authorizeDeveloper(p, cmd.DeveloperID); err != nil {
		return nil, err
	}

	now := s.now()
	result := &EnsureResult{Year: now.Year()}
	start, ok := billing.StartMonth(now, s.cutoffDay)
	if !ok {
		return result, nil
	}
	result.StartMonth = start

	rate, err := s.registry.ActiveRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve active rate: %w", err)
	}
	properties, err := s.reader.ActivePropertiesByDeveloper(ctx, cmd.DeveloperID)
	if err != nil {
		return nil, fmt.Errorf("load developer properties: %w", err)
	}
	if !containsProperty(properties, cmd.PropertyID) {
		properties = append(properties, property.Property{ID: cmd.PropertyID, Name: cmd.PropertyName, OwnedBy: cmd.DeveloperID})
	}

	err = s.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		account, err := s.ensureAccount(ctx, repos.BillingAccounts(), cmd.DeveloperID, rate, false)
		if err != nil {
			return err
		}

		for month := start; month <= 12; month++ {
			existing, err := repos.BillingInvoices().FindForPeriod(ctx, cmd.DeveloperID, result.Year, month)
			switch {
			case errors.Is(err, shared.ErrNotFound):
				if err := s.createInvoice(ctx, repos, account, result.Year, month, properties, rate); err != nil {
					return err
				}
				result.Created++
			case err != nil:
				return err
			case existing.IsPaid:
				result.Unchanged++
			default:
				added, err := existing.AppendProperty(cmd.PropertyID, cmd.PropertyName, rate)
				if err != nil {
					return err
				}
				if !added {
					result.Unchanged++
					continue
				}
				if err := repos.BillingInvoices().SaveWithLock(ctx, existing); err != nil {
					return err
				}
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("billing ensured for new property",
		zap.String("developer_id", cmd.DeveloperID.String()),
		zap.String("property_id", cmd.PropertyID.String()),
		zap.Int("start_month", start),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
	)
	return result, nil
}

// RegenerateYear creates the missing monthly invoices of every developer with
// an active property. Outside January it needs force. With force, unpaid
// invoices of the year are deleted and recreated, except those a gateway
// transaction references, which are rebuilt in place. Paid months are kept.
func (s *Service) RegenerateYear(ctx context.Context, year int, force bool, triggeredBy string) *RegenerateResult {
	now := s.now()
	result := &RegenerateResult{Year: year, Force: force, Skipped: map[string]int{}, Success: true}
	if now.Month() != time.January && !force {
		result.Skipped[SkipNotJanuary] = 1
		return result
	}
	result.Ran = true

	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "regenerate_year")
	defer span.End()
	telemetry.SetAttributes(span, "year", year, "force", force)

	tally := job.NewTally(0)
	created, rebuilt, accounts := 0, 0, 0
	var deleted int64

	err := s.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		rate, err := s.registry.ActiveRate(ctx)
		if err != nil {
			return fmt.Errorf("resolve active rate: %w", err)
		}
		developers, err := s.reader.DevelopersWithActiveProperties(ctx)
		if err != nil {
			return fmt.Errorf("load developers: %w", err)
		}

		seenIDs := make(map[uuid.UUID]struct{}, len(developers))
		seenEmails := make(map[string]struct{}, len(developers))
		tally = job.Fold(developers, func(dev property.Developer) job.Outcome {
			email := strings.ToLower(strings.TrimSpace(dev.Email))
			if _, dup := seenIDs[dev.ID]; dup {
				return job.Outcome{Kind: job.Skipped, Reason: SkipDuplicate}
			}
			if _, dup := seenEmails[email]; dup && email != "" {
				return job.Outcome{Kind: job.Skipped, Reason: SkipDuplicate}
			}
			seenIDs[dev.ID] = struct{}{}
			if email != "" {
				seenEmails[email] = struct{}{}
			}

			var out regenerated
			err := repos.Savepoint(ctx, func(sp txn.TransactionalRepositories) error {
				var err error
				out, err = s.regenerateDeveloper(ctx, sp, dev, year, rate, force)
				return err
			})
			if err != nil {
				s.logger.Warn("failed to regenerate developer billing",
					zap.String("developer_id", dev.ID.String()),
					zap.Error(err),
				)
				return job.Outcome{Kind: job.Failed, Err: fmt.Errorf("developer %s: %w", dev.ID, err)}
			}
			accounts++
			created += out.created
			rebuilt += out.rebuilt
			deleted += out.deleted
			if out.created == 0 && out.rebuilt == 0 {
				return job.Outcome{Kind: job.Skipped, Reason: SkipUpToDate}
			}
			return job.Outcome{Kind: job.Created}
		})

		return repos.JobRuns().Create(ctx, job.NewRun(job.NameYearlyBilling, now, tally, nil, triggeredBy))
	})

	result.Developers = tally.Candidates
	result.Errors = tally.Errors
	for reason, n := range tally.Skipped {
		result.Skipped[reason] += n
	}
	run := job.NewRun(job.NameYearlyBilling, now, tally, err, triggeredBy)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("yearly billing regeneration failed", zap.Int("year", year), zap.Error(err))
		run.Created = 0
		recordFailedRun(ctx, s.scope, run, s.logger)
		s.observer.ObserveRun(run)
		result.Success = false
		result.Error = err.Error()
		return result
	}

	s.observer.ObserveRun(run)
	result.Accounts = accounts
	result.Created = created
	result.Deleted = deleted
	result.Rebuilt = rebuilt
	s.logger.Info("yearly billing regenerated",
		zap.Int("year", year),
		zap.Bool("force", force),
		zap.Int("developers", tally.Candidates),
		zap.Int("invoices_created", created),
		zap.Int64("invoices_deleted", deleted),
		zap.Int("invoices_rebuilt", rebuilt),
		zap.Int("errors", tally.Errors),
	)
	return result
}

type regenerated struct {
	created int
	rebuilt int
	deleted int64
}

func (s *Service) regenerateDeveloper(
	ctx context.Context,
	repos txn.TransactionalRepositories,
	dev property.Developer,
	year int,
	rate decimal.Decimal,
	force bool,
) (regenerated, error) {
	var out regenerated
	account, err := s.ensureAccount(ctx, repos.BillingAccounts(), dev.ID, rate, true)
	if err != nil {
		return out, err
	}
	account.UpdateSnapshot(dev.Contact)
	if err := repos.BillingAccounts().Save(ctx, account); err != nil {
		return out, err
	}

	if force {
		out.deleted, err = repos.BillingInvoices().DeleteUnpaidForYear(ctx, dev.ID, year)
		if err != nil {
			return out, err
		}
	}

	properties, err := s.reader.ActivePropertiesByDeveloper(ctx, dev.ID)
	if err != nil {
		return out, err
	}
	existing, err := repos.BillingInvoices().FindByDeveloperYear(ctx, dev.ID, year)
	if err != nil {
		return out, err
	}
	have := make(map[int]bool, len(existing))
	for i := range existing {
		inv := &existing[i]
		have[inv.Month] = true
		// unpaid survivors of a forced run are held by a gateway transaction
		if !force || inv.IsPaid {
			continue
		}
		if err := inv.Rebuild(properties, rate); err != nil {
			return out, err
		}
		if err := repos.BillingInvoices().SaveWithLock(ctx, inv); err != nil {
			return out, err
		}
		out.rebuilt++
	}

	for month := 1; month <= 12; month++ {
		if have[month] {
			continue
		}
		if err := s.createInvoice(ctx, repos, account, year, month, properties, rate); err != nil {
			return out, err
		}
		out.created++
	}
	return out, nil
}

// ChangeRate records a new platform rate and re-prices every unpaid invoice
// from the later of now and effectiveFrom. Paid and past invoices keep the
// amounts they were issued with.
func (s *Service) ChangeRate(ctx context.Context, p identity.Principal, cmd ChangeRateCommand) (*ChangeRateResult, error) {
	if !p.IsAdmin() {
		return nil, shared.ErrForbidden.WithMessage("Only administrators can change the billing rate")
	}
	if err := pricing.ValidateRate(cmd.Amount); err != nil {
		return nil, err
	}

	now := s.now()
	effective := now
	if cmd.EffectiveFrom != nil && cmd.EffectiveFrom.After(now) {
		effective = *cmd.EffectiveFrom
	}
	result := &ChangeRateResult{Rate: cmd.Amount, EffectiveFrom: effective}

	err := s.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		if err := repos.Rates().SetActiveRate(ctx, pricing.Rate{Amount: cmd.Amount, EffectiveFrom: effective}); err != nil {
			return err
		}
		n, err := repos.BillingAccounts().UpdateAllRates(ctx, cmd.Amount)
		if err != nil {
			return err
		}
		result.AccountsUpdated = n

		unpaid, err := repos.BillingInvoices().FindUnpaidFrom(ctx, effective.Year(), int(effective.Month()))
		if err != nil {
			return err
		}
		for i := range unpaid {
			inv := &unpaid[i]
			if err := inv.ApplyRate(cmd.Amount); err != nil {
				return err
			}
			if err := repos.BillingInvoices().SaveWithLock(ctx, inv); err != nil {
				return err
			}
			result.InvoicesPatched++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("billing rate changed",
		zap.String("rate", cmd.Amount.String()),
		zap.Time("effective_from", effective),
		zap.Int64("accounts", result.AccountsUpdated),
		zap.Int("invoices_patched", result.InvoicesPatched),
	)
	return result, nil
}

// GetAccount returns a developer's billing account
func (s *Service) GetAccount(ctx context.Context, p identity.Principal, developerID uuid.UUID) (*billing.Account, error) {
	if err := authorizeDeveloper(p, developerID); err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByDeveloper(ctx, developerID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrNotFound.WithMessage("Billing account not found")
	}
	return account, err
}

// ListInvoices lists billing invoices with overdue derived at read time.
// Developers only see their own.
func (s *Service) ListInvoices(ctx context.Context, p identity.Principal, q ListInvoicesQuery) (shared.Paginated[InvoiceView], error) {
	filter := billing.InvoiceFilter{
		Filter:      shared.DefaultFilter(),
		DeveloperID: q.DeveloperID,
		Year:        q.Year,
		Month:       q.Month,
		IsPaid:      q.IsPaid,
	}
	if q.Page > 0 {
		filter.Page = q.Page
	}
	if q.PageSize > 0 && q.PageSize <= shared.MaxPageSize {
		filter.PageSize = q.PageSize
	}
	if !p.IsAdmin() {
		if q.DeveloperID != nil {
			if err := authorizeDeveloper(p, *q.DeveloperID); err != nil {
				return shared.Paginated[InvoiceView]{}, err
			}
		}
		id := p.UserID
		filter.DeveloperID = &id
	}

	items, total, err := s.invoices.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[InvoiceView]{}, err
	}
	now := s.now()
	views := make([]InvoiceView, 0, len(items))
	for _, inv := range items {
		views = append(views, InvoiceView{Invoice: inv, DisplayStatus: inv.DisplayStatus(now)})
	}
	return shared.NewPaginated(views, total, filter.Page, filter.PageSize), nil
}

// ensureAccount loads or lazily creates a developer's account. With
// updateRate an existing account is moved to rate.
func (s *Service) ensureAccount(ctx context.Context, repo billing.AccountRepository, developerID uuid.UUID, rate decimal.Decimal, updateRate bool) (*billing.Account, error) {
	account, err := repo.FindByDeveloper(ctx, developerID)
	if err == nil {
		if updateRate && !account.FixedMonthlyRate.Equal(rate) {
			if err := account.SetRate(rate); err != nil {
				return nil, err
			}
			if err := repo.Save(ctx, account); err != nil {
				return nil, err
			}
		}
		return account, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	contact := property.Contact{ID: developerID}
	if c, err := s.reader.ContactByID(ctx, developerID); err == nil {
		contact = *c
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	account, err = billing.NewAccount(contact, rate)
	if err != nil {
		return nil, err
	}
	if err := repo.Save(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// createInvoice inserts a developer's invoice for a month under the
// consolidated number, or under a plain sequential number when the developer
// has no name or another developer already holds the consolidated one.
func (s *Service) createInvoice(
	ctx context.Context,
	repos txn.TransactionalRepositories,
	account *billing.Account,
	year, month int,
	properties []property.Property,
	rate decimal.Decimal,
) error {
	if account.DeveloperName != "" {
		number := billing.FormatConsolidatedNumber(account.DeveloperName, account.DeveloperID, year, month)
		err := repos.Savepoint(ctx, func(sp txn.TransactionalRepositories) error {
			inv, err := billing.NewInvoice(number, account, year, month, properties, rate)
			if err != nil {
				return err
			}
			return sp.BillingInvoices().Create(ctx, inv)
		})
		if !errors.Is(err, shared.ErrAlreadyExists) {
			return err
		}
		if _, findErr := repos.BillingInvoices().FindForPeriod(ctx, account.DeveloperID, year, month); !errors.Is(findErr, shared.ErrNotFound) {
			if findErr != nil {
				return findErr
			}
			return err
		}
		s.logger.Warn("consolidated billing number taken, using a plain number",
			zap.String("invoice_number", number),
			zap.String("developer_id", account.DeveloperID.String()),
		)
	}

	seq, err := repos.BillingInvoices().CountForPeriod(ctx, year, month)
	if err != nil {
		return err
	}
	inv, err := billing.NewInvoice(billing.FormatPlainNumber(year, month, seq+1), account, year, month, properties, rate)
	if err != nil {
		return err
	}
	return repos.BillingInvoices().Create(ctx, inv)
}

func authorizeDeveloper(p identity.Principal, developerID uuid.UUID) error {
	if p.IsAdmin() || (p.Role == identity.RoleDeveloper && p.UserID == developerID) {
		return nil
	}
	return shared.ErrForbidden.WithMessage("You can only manage your own billing")
}

func containsProperty(properties []property.Property, id uuid.UUID) bool {
	for _, p := range properties {
		if p.ID == id {
			return true
		}
	}
	return false
}

// recordFailedRun writes a failure row in its own transaction
func recordFailedRun(ctx context.Context, scope txn.TransactionScope, run *job.Run, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	err := scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		return repos.JobRuns().Create(ctx, run)
	})
	if err != nil {
		logger.Warn("failed to record job run", zap.String("job", string(run.Job)), zap.Error(err))
	}
}
