package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/application/txn"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Skip reasons reported by the monthly generator
const (
	SkipNotRented  = "notRented"
	SkipNoProperty = "noProperty"
	SkipNoTenant   = "noTenant"
	SkipFixedLease = "fixedLease"
)

// GenerateResult summarises one monthly generator run
type GenerateResult struct {
	Period     invoice.Period `json:"period"`
	Candidates int            `json:"candidates"`
	Created    int            `json:"created"`
	Errors     int            `json:"errors"`
	Skipped    map[string]int `json:"skipped"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
}

// Generator issues the monthly rent invoices of every occupied unit
type Generator struct {
	scope     txn.TransactionScope
	reader    property.Reader
	registry  pricing.Registry
	publisher shared.EventPublisher
	observer  job.Observer
	logger    *zap.Logger
	now       func() time.Time
}

// NewGenerator creates a new Generator
func NewGenerator(
	scope txn.TransactionScope,
	reader property.Reader,
	registry pricing.Registry,
	publisher shared.EventPublisher,
	observer job.Observer,
	logger *zap.Logger,
) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = job.NopObserver{}
	}
	return &Generator{
		scope:     scope,
		reader:    reader,
		registry:  registry,
		publisher: publisher,
		observer:  observer,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// RunCurrent generates invoices for the current month
func (g *Generator) RunCurrent(ctx context.Context, triggeredBy string) *GenerateResult {
	return g.Run(ctx, invoice.PeriodOf(g.now()), triggeredBy)
}

// Run generates the missing invoices of a period. Systemic failures are
// folded into the result rather than returned.
func (g *Generator) Run(ctx context.Context, period invoice.Period, triggeredBy string) *GenerateResult {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice_generator", "run")
	defer span.End()
	telemetry.SetAttributes(span, "period", period.String(), "triggered_by", triggeredBy)

	startedAt := g.now()
	tally := job.NewTally(0)
	var created []*invoice.Invoice

	err := g.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		candidates, err := g.candidates(ctx, repos.Invoices(), period)
		if err != nil {
			return err
		}

		tally = job.Fold(candidates, func(unit property.Unit) job.Outcome {
			var outcome job.Outcome
			err := repos.Savepoint(ctx, func(sp txn.TransactionalRepositories) error {
				var inv *invoice.Invoice
				var err error
				inv, outcome, err = g.generateOne(ctx, sp.Invoices(), unit, period)
				if err == nil && inv != nil {
					created = append(created, inv)
				}
				return err
			})
			if err != nil {
				g.logger.Warn("failed to generate invoice",
					zap.String("unit_id", unit.ID.String()),
					zap.String("period", period.String()),
					zap.Error(err),
				)
				return job.Outcome{Kind: job.Failed, Err: fmt.Errorf("unit %s: %w", unit.UnitNumber, err)}
			}
			return outcome
		})

		return repos.JobRuns().Create(ctx, job.NewRun(job.NameMonthlyInvoices, startedAt, tally, nil, triggeredBy))
	})

	run := g.finish(ctx, startedAt, tally, err, triggeredBy)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		for _, inv := range created {
			g.publish(ctx, inv)
		}
	}
	telemetry.SetAttributes(span, "created", tally.Created, "errors", tally.Errors)

	return &GenerateResult{
		Period:     period,
		Candidates: tally.Candidates,
		Created:    run.Created,
		Errors:     tally.Errors,
		Skipped:    tally.Skipped,
		Success:    run.Success,
		Error:      run.Error,
	}
}

// candidates returns occupied units that hold no invoice for the period
func (g *Generator) candidates(ctx context.Context, invoices invoice.Repository, period invoice.Period) ([]property.Unit, error) {
	units, err := g.reader.OccupiedUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("load occupied units: %w", err)
	}
	invoiced, err := invoices.InvoicedUnitIDs(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("load invoiced units: %w", err)
	}

	done := make(map[uuid.UUID]struct{}, len(invoiced))
	for _, id := range invoiced {
		done[id] = struct{}{}
	}
	out := make([]property.Unit, 0, len(units))
	for _, u := range units {
		if _, ok := done[u.ID]; !ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (g *Generator) generateOne(
	ctx context.Context,
	invoices invoice.Repository,
	unit property.Unit,
	period invoice.Period,
) (*invoice.Invoice, job.Outcome, error) {
	skip := func(reason string) (*invoice.Invoice, job.Outcome, error) {
		return nil, job.Outcome{Kind: job.Skipped, Reason: reason}, nil
	}

	if !unit.Status.IsInvoiceable() {
		return skip(SkipNotRented)
	}
	prop, err := g.reader.PropertyByID(ctx, unit.PropertyID)
	if errors.Is(err, shared.ErrNotFound) {
		return skip(SkipNoProperty)
	}
	if err != nil {
		return nil, job.Outcome{}, err
	}
	tenant, err := g.reader.ActiveTenantForUnit(ctx, unit.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return skip(SkipNoTenant)
	}
	if err != nil {
		return nil, job.Outcome{}, err
	}
	if tenant.IsFixed() && period.WithinLease(tenant.LeaseStartDate, tenant.LeaseEndDate) {
		return skip(SkipFixedLease)
	}

	fee, err := g.registry.ServiceFee(ctx, prop.ID, unit.Type)
	if err != nil {
		return nil, job.Outcome{}, fmt.Errorf("resolve service fee: %w", err)
	}
	services, err := g.reader.MandatoryServices(ctx, prop.ID)
	if err != nil {
		return nil, job.Outcome{}, fmt.Errorf("load mandatory services: %w", err)
	}
	seq, err := invoices.CountForPropertyPeriod(ctx, prop.ID, period)
	if err != nil {
		return nil, job.Outcome{}, err
	}

	now := g.now()
	inv, err := invoice.NewInvoice(invoice.NewInvoiceParams{
		Number:     invoice.FormatNumber(prop.Name, period, seq+1, now),
		PropertyID: prop.ID,
		UnitID:     unit.ID,
		TenantID:   tenant.ID,
		Period:     period,
		Composition: invoice.Composition{
			Rent:           tenant.Rent(&unit),
			ServiceFee:     fee,
			OwnerOccupied:  tenant.IsOwnerOccupied(),
			ServiceCharges: ChargesFor(services),
		},
		Status: invoice.StatusIssued,
		Now:    now,
	})
	if err != nil {
		return nil, job.Outcome{}, err
	}
	if err := invoices.Create(ctx, inv); err != nil {
		return nil, job.Outcome{}, err
	}
	return inv, job.Outcome{Kind: job.Created}, nil
}

// finish records the run. A rolled back run is written outside the
// transaction so the failure stays visible.
func (g *Generator) finish(ctx context.Context, startedAt time.Time, tally job.Tally, runErr error, triggeredBy string) *job.Run {
	if runErr != nil {
		tally.Created = 0
	}
	run := job.NewRun(job.NameMonthlyInvoices, startedAt, tally, runErr, triggeredBy)
	if runErr != nil {
		g.logger.Error("monthly invoice generation failed", zap.Error(runErr))
		recordFailedRun(ctx, g.scope, run, g.logger)
	} else {
		g.logger.Info("monthly invoice generation finished",
			zap.Int("candidates", tally.Candidates),
			zap.Int("created", tally.Created),
			zap.Int("errors", tally.Errors),
			zap.Int("skipped", tally.SkippedTotal()),
		)
	}
	g.observer.ObserveRun(run)
	return run
}

func (g *Generator) publish(ctx context.Context, inv *invoice.Invoice) {
	events := inv.PullDomainEvents()
	if g.publisher == nil || len(events) == 0 {
		return
	}
	if err := g.publisher.Publish(ctx, events...); err != nil {
		g.logger.Warn("failed to publish invoice events", zap.Error(err))
	}
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
