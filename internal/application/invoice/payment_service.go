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
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService records payments against rent invoices and cancels them
type PaymentService struct {
	scope     txn.TransactionScope
	invoices  invoice.Repository
	reader    property.Reader
	registry  pricing.Registry
	publisher shared.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	scope txn.TransactionScope,
	invoices invoice.Repository,
	reader property.Reader,
	registry pricing.Registry,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
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
func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
	s.now = now
	return s
}

// RecordPayment creates or updates the invoice for a unit and period.
// Gateway payments leave the invoice awaiting the callback; any other method
// settles it immediately.
func (s *PaymentService) RecordPayment(ctx context.Context, p identity.Principal, cmd RecordPaymentCommand) (*invoice.Invoice, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, shared.ErrInvalidInput.WithMessage(err.Error())
	}
	if !cmd.PaymentMethod.IsValid() {
		return nil, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("Unknown payment method %q", cmd.PaymentMethod))
	}
	if !cmd.PaymentMethod.IsGateway() && !p.Role.IsPrivileged() {
		return nil, shared.ErrForbidden.WithMessage("Tenants can only pay through M-Pesa")
	}
	period, err := invoice.NewPeriod(cmd.Month, cmd.Year)
	if err != nil {
		return nil, err
	}

	unit, err := s.reader.UnitByID(ctx, cmd.UnitID)
	if err != nil {
		return nil, notFound(err, "Unit not found")
	}
	tenant, err := s.reader.TenantByID(ctx, cmd.TenantID)
	if err != nil {
		return nil, notFound(err, "Tenant not found")
	}
	if tenant.UnitID != unit.ID {
		return nil, shared.ErrInvalidInput.WithMessage("Tenant does not occupy this unit")
	}
	prop, err := s.reader.PropertyByID(ctx, unit.PropertyID)
	if err != nil {
		return nil, notFound(err, "Property not found")
	}
	if p.Role == identity.RoleTenant {
		err = AuthorizeTenant(p, tenant)
	} else {
		err = AuthorizeProperty(p, prop)
	}
	if err != nil {
		return nil, err
	}

	if err := checkLeaseWindow(tenant, period); err != nil {
		return nil, err
	}

	comp, err := s.compose(ctx, p, cmd, prop, unit, tenant)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var inv *invoice.Invoice
	err = s.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		existing, err := findExisting(ctx, repos.Invoices(), unit, tenant, period)
		if err != nil {
			return err
		}

		if existing == nil {
			seq, err := repos.Invoices().CountForPropertyPeriod(ctx, prop.ID, period)
			if err != nil {
				return err
			}
			inv, err = invoice.NewInvoice(invoice.NewInvoiceParams{
				Number:      invoice.FormatNumber(prop.Name, period, seq+1, now),
				PropertyID:  prop.ID,
				UnitID:      unit.ID,
				TenantID:    tenant.ID,
				Period:      period,
				LeaseStart:  leaseStart(tenant, period),
				Composition: comp,
				Status:      invoice.StatusDraft,
				CreatedBy:   p.Actor(),
				Now:         now,
			})
			if err != nil {
				return err
			}
			if err := s.settle(inv, cmd, now); err != nil {
				return err
			}
			return repos.Invoices().Create(ctx, inv)
		}

		inv = existing
		if inv.IsPaid {
			if cmd.PaymentReference != "" && cmd.PaymentReference == inv.PaymentReference {
				return nil
			}
			return invoice.ErrAlreadyPaid
		}
		if err := inv.Recompose(comp); err != nil {
			return err
		}
		if err := s.settle(inv, cmd, now); err != nil {
			return err
		}
		return repos.Invoices().SaveWithLock(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, inv)
	s.logger.Info("invoice payment recorded",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("method", string(cmd.PaymentMethod)),
		zap.String("status", string(inv.Status)),
	)
	return inv, nil
}

// Cancel invalidates a paid invoice. Only an admin or the developer owning
// the property may cancel.
func (s *PaymentService) Cancel(ctx context.Context, p identity.Principal, invoiceID uuid.UUID) (*invoice.Invoice, error) {
	if p.Role != identity.RoleAdmin && p.Role != identity.RoleDeveloper && p.Role != identity.RoleSystem {
		return nil, shared.ErrForbidden.WithMessage("Only the property owner can cancel an invoice")
	}

	var inv *invoice.Invoice
	err := s.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		var err error
		inv, err = repos.Invoices().FindByID(ctx, invoiceID)
		if err != nil {
			return notFound(err, "Invoice not found")
		}
		if !p.IsAdmin() {
			prop, err := s.reader.PropertyByID(ctx, inv.PropertyID)
			if err != nil {
				return notFound(err, "Property not found")
			}
			if prop.OwnedBy != p.UserID {
				return shared.ErrForbidden.WithMessage("Only the property owner can cancel an invoice")
			}
		}
		if err := inv.Cancel(p.UserID, s.now()); err != nil {
			return err
		}
		return repos.Invoices().SaveWithLock(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	if inv.Disbursement.IsDisbursed {
		s.logger.Warn("cancelled invoice had already been disbursed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("net_disbursed", inv.Disbursement.NetDisbursedAmount.String()),
		)
	}
	s.publish(ctx, inv)
	return inv, nil
}

// Get returns an invoice the principal may see
func (s *PaymentService) Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*invoice.Invoice, error) {
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Invoice not found")
	}
	if err := AuthorizeInvoice(ctx, s.reader, p, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns a page of invoices scoped to the principal, with a summary
func (s *PaymentService) List(ctx context.Context, p identity.Principal, q ListInvoicesQuery) (*InvoiceListResult, error) {
	filter := invoice.Filter{
		Filter:     shared.DefaultFilter(),
		PropertyID: q.PropertyID,
		TenantID:   q.TenantID,
		UnitID:     q.UnitID,
		Status:     q.Status,
		IsPaid:     q.IsPaid,
	}
	if q.Page > 0 {
		filter.Page = q.Page
	}
	if q.PageSize > 0 && q.PageSize <= shared.MaxPageSize {
		filter.PageSize = q.PageSize
	}
	if q.Month != nil && q.Year != nil {
		period, err := invoice.NewPeriod(*q.Month, *q.Year)
		if err != nil {
			return nil, err
		}
		filter.Period = &period
	}

	switch p.Role {
	case identity.RoleAdmin, identity.RoleSystem:
	case identity.RoleTenant:
		if q.TenantID == nil {
			return nil, shared.ErrInvalidInput.WithMessage("tenant_id is required")
		}
		tenant, err := s.reader.TenantByID(ctx, *q.TenantID)
		if err != nil {
			return nil, notFound(err, "Tenant not found")
		}
		if err := AuthorizeTenant(p, tenant); err != nil {
			return nil, err
		}
	default:
		if q.PropertyID != nil {
			prop, err := s.reader.PropertyByID(ctx, *q.PropertyID)
			if err != nil {
				return nil, notFound(err, "Property not found")
			}
			if err := AuthorizeProperty(p, prop); err != nil {
				return nil, err
			}
		} else {
			filter.PropertyIDs = p.PropertyIDs
			if len(filter.PropertyIDs) == 0 {
				return &InvoiceListResult{Items: []invoice.Invoice{}, Page: filter.Page, PageSize: filter.PageSize}, nil
			}
		}
	}

	items, total, err := s.invoices.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary, err := s.invoices.Summarize(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &InvoiceListResult{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize, Summary: summary}, nil
}

func (s *PaymentService) settle(inv *invoice.Invoice, cmd RecordPaymentCommand, now time.Time) error {
	if cmd.PaymentMethod.IsGateway() {
		return inv.AwaitGateway(cmd.PaymentMethod, cmd.PhoneNumber)
	}
	paidAt := now
	if cmd.PaymentDate != nil {
		paidAt = *cmd.PaymentDate
	}
	return inv.MarkPaid(invoice.Payment{
		Method:        cmd.PaymentMethod,
		Reference:     cmd.PaymentReference,
		PhoneNumber:   cmd.PhoneNumber,
		ReceiptNumber: invoice.FormatReceiptNumber(inv.InvoiceNumber, paidAt),
		PaidAt:        paidAt,
	})
}

// compose builds the invoice amounts from the read model and the request
func (s *PaymentService) compose(
	ctx context.Context,
	p identity.Principal,
	cmd RecordPaymentCommand,
	prop *property.Property,
	unit *property.Unit,
	tenant *property.Tenant,
) (invoice.Composition, error) {
	fee, err := s.registry.ServiceFee(ctx, prop.ID, unit.Type)
	if err != nil {
		return invoice.Composition{}, fmt.Errorf("resolve service fee: %w", err)
	}

	comp := invoice.Composition{
		Rent:          tenant.Rent(unit),
		ServiceFee:    fee,
		OwnerOccupied: tenant.IsOwnerOccupied(),
	}

	editor := p.Role.CanEditServiceCharges()
	if editor && cmd.ServiceCharges != nil {
		comp.ServiceCharges = cmd.ServiceCharges
	} else {
		services, err := s.reader.MandatoryServices(ctx, prop.ID)
		if err != nil {
			return invoice.Composition{}, fmt.Errorf("load mandatory services: %w", err)
		}
		comp.ServiceCharges = ChargesFor(services)
	}

	if cmd.Amount == nil {
		return comp, nil
	}
	base := *cmd.Amount
	if !editor {
		base = base.Sub(comp.ServiceCharges.Total())
	}
	return withBaseAmount(comp, base)
}

// withBaseAmount splits a submitted base amount into rent and fee
func withBaseAmount(comp invoice.Composition, base decimal.Decimal) (invoice.Composition, error) {
	if base.IsNegative() {
		return comp, shared.ErrInvalidInput.WithMessage("Amount is less than the service charges")
	}
	if comp.OwnerOccupied {
		comp.ServiceFee = base
		return comp, nil
	}
	if comp.ServiceFee.GreaterThan(base) {
		comp.ServiceFee = base
	}
	comp.Rent = base.Sub(comp.ServiceFee)
	return comp, nil
}

// ChargesFor converts mandatory services into invoice service charges
func ChargesFor(services []property.Service) invoice.ServiceCharges {
	charges := make(invoice.ServiceCharges, 0, len(services))
	for _, svc := range services {
		if !svc.IsMandatory || !svc.IsActive {
			continue
		}
		charges = append(charges, invoice.ServiceCharge{ServiceID: svc.ID, ServiceName: svc.Name, Amount: svc.Amount})
	}
	return charges
}

// checkLeaseWindow rejects monthly invoices inside a fixed tenant's lease.
// Only fixed tenants may hold the month 0 lease invoice.
func checkLeaseWindow(tenant *property.Tenant, period invoice.Period) error {
	if period.IsLease() {
		if !tenant.IsFixed() {
			return shared.ErrInvalidInput.WithMessage("Only fixed lease tenants can be billed for a whole lease")
		}
		if tenant.LeaseStartDate == nil {
			return shared.ErrInvalidInput.WithMessage("Fixed lease tenant has no lease start date")
		}
		return nil
	}
	if tenant.IsFixed() && period.WithinLease(tenant.LeaseStartDate, tenant.LeaseEndDate) {
		return invoice.ErrFixedLeasePeriod
	}
	return nil
}

// findExisting looks up the invoice a payment settles: the unit's invoice for
// a monthly period, or the tenant's invoice for the current lease.
func findExisting(ctx context.Context, repo invoice.Repository, unit *property.Unit, tenant *property.Tenant, period invoice.Period) (*invoice.Invoice, error) {
	var (
		inv *invoice.Invoice
		err error
	)
	if period.IsLease() {
		inv, err = repo.FindLeaseInvoice(ctx, tenant.ID, *tenant.LeaseStartDate)
	} else {
		inv, err = repo.FindActiveForUnitPeriod(ctx, unit.ID, period)
	}
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return inv, err
}

func leaseStart(tenant *property.Tenant, period invoice.Period) *time.Time {
	if !period.IsLease() {
		return nil
	}
	return tenant.LeaseStartDate
}

func (s *PaymentService) publish(ctx context.Context, inv *invoice.Invoice) {
	events := inv.PullDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish invoice events", zap.Error(err))
	}
}

// notFound maps a repository miss to a not found error with a message
func notFound(err error, message string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.ErrNotFound.WithMessage(message)
	}
	return err
}
