package handler

import (
	"context"

	"github.com/google/uuid"
	billingapp "github.com/propledger/backend/internal/application/billing"
	invoiceapp "github.com/propledger/backend/internal/application/invoice"
	paymentapp "github.com/propledger/backend/internal/application/payment"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

type mockInvoiceService struct{ mock.Mock }

func (m *mockInvoiceService) RecordPayment(ctx context.Context, p identity.Principal, cmd invoiceapp.RecordPaymentCommand) (*invoice.Invoice, error) {
	args := m.Called(ctx, p, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *mockInvoiceService) Cancel(ctx context.Context, p identity.Principal, id uuid.UUID) (*invoice.Invoice, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *mockInvoiceService) Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*invoice.Invoice, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *mockInvoiceService) List(ctx context.Context, p identity.Principal, q invoiceapp.ListInvoicesQuery) (*invoiceapp.InvoiceListResult, error) {
	args := m.Called(ctx, p, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoiceapp.InvoiceListResult), args.Error(1)
}

type mockDisbursementService struct{ mock.Mock }

func (m *mockDisbursementService) MarkDisbursed(ctx context.Context, p identity.Principal, cmd invoiceapp.MarkDisbursedCommand) (*invoice.Invoice, error) {
	args := m.Called(ctx, p, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *mockDisbursementService) Report(ctx context.Context, p identity.Principal, propertyID uuid.UUID, month, year int) (*invoice.Report, error) {
	args := m.Called(ctx, p, propertyID, month, year)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Report), args.Error(1)
}

type stubProperties map[uuid.UUID]*property.Property

func (s stubProperties) PropertyByID(_ context.Context, id uuid.UUID) (*property.Property, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, shared.ErrNotFound
}

type mockBillingService struct{ mock.Mock }

func (m *mockBillingService) EnsureForNewProperty(ctx context.Context, p identity.Principal, cmd billingapp.EnsurePropertyCommand) (*billingapp.EnsureResult, error) {
	args := m.Called(ctx, p, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.EnsureResult), args.Error(1)
}

func (m *mockBillingService) RegenerateYear(ctx context.Context, year int, force bool, triggeredBy string) *billingapp.RegenerateResult {
	args := m.Called(ctx, year, force, triggeredBy)
	return args.Get(0).(*billingapp.RegenerateResult)
}

func (m *mockBillingService) ChangeRate(ctx context.Context, p identity.Principal, cmd billingapp.ChangeRateCommand) (*billingapp.ChangeRateResult, error) {
	args := m.Called(ctx, p, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.ChangeRateResult), args.Error(1)
}

func (m *mockBillingService) GetAccount(ctx context.Context, p identity.Principal, developerID uuid.UUID) (*billing.Account, error) {
	args := m.Called(ctx, p, developerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Account), args.Error(1)
}

func (m *mockBillingService) ListInvoices(ctx context.Context, p identity.Principal, q billingapp.ListInvoicesQuery) (shared.Paginated[billingapp.InvoiceView], error) {
	args := m.Called(ctx, p, q)
	return args.Get(0).(shared.Paginated[billingapp.InvoiceView]), args.Error(1)
}

type mockMpesaService struct{ mock.Mock }

func (m *mockMpesaService) Initiate(ctx context.Context, p identity.Principal, cmd paymentapp.InitiateCommand) (*paymentapp.InitiateResult, error) {
	args := m.Called(ctx, p, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.InitiateResult), args.Error(1)
}

func (m *mockMpesaService) HandleCallback(ctx context.Context, body []byte) (*paymentapp.CallbackAck, error) {
	args := m.Called(ctx, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.CallbackAck), args.Error(1)
}

func (m *mockMpesaService) Watch(ctx context.Context, p identity.Principal, checkoutRequestID string) (*paymentapp.WatchResult, error) {
	args := m.Called(ctx, p, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.WatchResult), args.Error(1)
}

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) RunCurrent(ctx context.Context, triggeredBy string) *invoiceapp.GenerateResult {
	return m.Called(ctx, triggeredBy).Get(0).(*invoiceapp.GenerateResult)
}

type mockReminderService struct{ mock.Mock }

func (m *mockReminderService) Run(ctx context.Context, triggeredBy string) *invoiceapp.ReminderResult {
	return m.Called(ctx, triggeredBy).Get(0).(*invoiceapp.ReminderResult)
}

func (m *mockReminderService) List(ctx context.Context, p identity.Principal, q invoiceapp.ListRemindersQuery) (shared.Paginated[reminder.Reminder], error) {
	args := m.Called(ctx, p, q)
	return args.Get(0).(shared.Paginated[reminder.Reminder]), args.Error(1)
}
