package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/application/txn"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DisbursementService pays out collected rent to unit owners
type DisbursementService struct {
	scope     txn.TransactionScope
	invoices  invoice.Repository
	reader    property.Reader
	registry  pricing.Registry
	publisher shared.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewDisbursementService creates a new DisbursementService
func NewDisbursementService(
	scope txn.TransactionScope,
	invoices invoice.Repository,
	reader property.Reader,
	registry pricing.Registry,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *DisbursementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisbursementService{
		scope:     scope,
		invoices:  invoices,
		reader:    reader,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source
func (s *DisbursementService) WithClock(now func() time.Time) *DisbursementService {
	s.now = now
	return s
}

// MarkDisbursed records the payout of a paid invoice, snapshotting the
// current service fee of the unit type.
func (s *DisbursementService) MarkDisbursed(ctx context.Context, p identity.Principal, cmd MarkDisbursedCommand) (*invoice.Invoice, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, shared.ErrInvalidInput.WithMessage(err.Error())
	}
	if cmd.PaymentDate.IsZero() {
		cmd.PaymentDate = s.now()
	}

	var inv *invoice.Invoice
	err := s.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		var err error
		inv, err = repos.Invoices().FindByID(ctx, cmd.InvoiceID)
		if err != nil {
			return notFound(err, "Invoice not found")
		}
		prop, err := s.reader.PropertyByID(ctx, inv.PropertyID)
		if err != nil {
			return notFound(err, "Property not found")
		}
		if err := AuthorizeProperty(p, prop); err != nil {
			return err
		}
		unit, err := s.reader.UnitByID(ctx, inv.UnitID)
		if err != nil {
			return notFound(err, "Unit not found")
		}
		fee, err := s.registry.ServiceFee(ctx, prop.ID, unit.Type)
		if err != nil {
			return fmt.Errorf("resolve service fee: %w", err)
		}

		if err := inv.MarkDisbursed(fee, invoice.DisbursementDetails{
			PaymentDate: cmd.PaymentDate,
			Method:      cmd.Method,
			Reference:   cmd.Reference,
			Notes:       cmd.Notes,
			ActorID:     p.Actor(),
		}); err != nil {
			return err
		}
		return repos.Invoices().SaveWithLock(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice disbursed",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("net", inv.Disbursement.NetDisbursedAmount.String()),
		zap.String("fee", inv.Disbursement.ServiceFeeAmount.String()),
	)
	events := inv.PullDomainEvents()
	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("failed to publish disbursement events", zap.Error(err))
		}
	}
	return inv, nil
}

// Report builds the disbursement projection of a property for a period
func (s *DisbursementService) Report(ctx context.Context, p identity.Principal, propertyID uuid.UUID, month, year int) (*invoice.Report, error) {
	period, err := invoice.NewPeriod(month, year)
	if err != nil {
		return nil, err
	}
	prop, err := s.reader.PropertyByID(ctx, propertyID)
	if err != nil {
		return nil, notFound(err, "Property not found")
	}
	if err := AuthorizeProperty(p, prop); err != nil {
		return nil, err
	}

	rows, err := s.invoices.DisbursementRows(ctx, propertyID, period)
	if err != nil {
		return nil, err
	}

	fees := make(map[string]decimal.Decimal)
	for _, row := range rows {
		if _, ok := fees[row.UnitType]; ok {
			continue
		}
		fee, err := s.registry.ServiceFee(ctx, propertyID, row.UnitType)
		if err != nil {
			return nil, fmt.Errorf("resolve service fee: %w", err)
		}
		fees[row.UnitType] = fee
	}

	report := invoice.BuildReport(propertyID, period, rows, func(unitType string) decimal.Decimal {
		return fees[unitType]
	})
	return &report, nil
}
