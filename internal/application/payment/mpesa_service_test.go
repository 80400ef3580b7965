package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) InitiateSTKPush(ctx context.Context, req *payment.STKPushRequest) (*payment.STKPushResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.STKPushResponse), args.Error(1)
}

func (m *mockGateway) ParseCallback(payload []byte) (*payment.CallbackResult, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CallbackResult), args.Error(1)
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) ObserveCallback(outcome string) {
	m.Called(outcome)
}

// chanBroker fans updates out to subscribers in process
type chanBroker struct {
	mu   sync.Mutex
	subs map[string][]chan payment.Update
}

func newChanBroker() *chanBroker {
	return &chanBroker{subs: map[string][]chan payment.Update{}}
}

func (b *chanBroker) Publish(_ context.Context, u payment.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[u.CheckoutRequestID] {
		ch <- u
	}
	return nil
}

func (b *chanBroker) Subscribe(_ context.Context, id string) (<-chan payment.Update, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan payment.Update, 1)
	b.subs[id] = append(b.subs[id], ch)
	return ch, func() {}, nil
}

func (b *chanBroker) subscribers(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}

type fixture struct {
	store     *testutil.Store
	gateway   *mockGateway
	metrics   *mockMetrics
	broker    *chanBroker
	publisher *testutil.RecordingPublisher

	developer property.Contact
	prop      property.Property
	unit      property.Unit
	tenant    property.Tenant
	tenantUID uuid.UUID
	invoice   *invoice.Invoice
}

var paidAt = time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:     testutil.NewStore(),
		gateway:   new(mockGateway),
		metrics:   new(mockMetrics),
		broker:    newChanBroker(),
		publisher: testutil.NewRecordingPublisher(),
		tenantUID: uuid.New(),
	}
	f.developer = f.store.AddContact(property.Contact{Name: "John Wanjiku", Email: "john@example.com"})
	f.prop = f.store.AddProperty(property.Property{Name: "Sunset Apartments", OwnedBy: f.developer.ID})
	f.unit = f.store.AddUnit(property.Unit{PropertyID: f.prop.ID, UnitNumber: "A1", Type: "1BR", Status: property.UnitStatusRented, IsOccupied: true})
	f.tenant = f.store.AddTenant(property.Tenant{
		UserID:     &f.tenantUID,
		PropertyID: f.prop.ID,
		UnitID:     f.unit.ID,
		Name:       "Jane Achieng",
		RentalType: property.RentalTypeMonthly,
		IsActive:   true,
	})

	inv, err := invoice.NewInvoice(invoice.NewInvoiceParams{
		Number:     "SUN-2503-001-0420",
		PropertyID: f.prop.ID,
		UnitID:     f.unit.ID,
		TenantID:   f.tenant.ID,
		Period:     invoice.Period{Month: 3, Year: 2025},
		Composition: invoice.Composition{
			Rent:       decimal.NewFromInt(9000),
			ServiceFee: decimal.NewFromInt(1000),
		},
		Status: invoice.StatusIssued,
		Now:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	inv.PullDomainEvents()
	f.store.PutInvoice(inv)
	f.invoice = inv
	return f
}

func (f *fixture) service() *MpesaService {
	return NewMpesaService(MpesaServiceConfig{
		Scope:           f.store.Scope(),
		Transactions:    f.store.TransactionRepository(),
		Invoices:        f.store.InvoiceRepository(),
		Accounts:        f.store.AccountRepository(),
		BillingInvoices: f.store.BillingInvoiceRepository(),
		Reader:          f.store,
		Gateway:         f.gateway,
		Broker:          f.broker,
		Publisher:       f.publisher,
		Metrics:         f.metrics,
		WaitWindow:      50 * time.Millisecond,
	}).WithClock(func() time.Time { return paidAt })
}

func (f *fixture) tenantPrincipal() identity.Principal {
	return identity.Principal{UserID: f.tenantUID, Role: identity.RoleTenant}
}

func (f *fixture) expectPush(checkoutID string) {
	f.gateway.On("InitiateSTKPush", mock.Anything, mock.MatchedBy(func(req *payment.STKPushRequest) bool {
		return req.PhoneNumber == "0712345678"
	})).Return(&payment.STKPushResponse{
		MerchantRequestID: "MR-1",
		CheckoutRequestID: checkoutID,
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
		PhoneNumber:       "254712345678",
	}, nil).Once()
}

func (f *fixture) initiateTenant(t *testing.T, svc *MpesaService, checkoutID string) *InitiateResult {
	f.expectPush(checkoutID)
	res, err := svc.Initiate(context.Background(), f.tenantPrincipal(), InitiateCommand{
		Type:        payment.TypeTenantPayment,
		InvoiceID:   f.invoice.ID,
		PhoneNumber: "0712345678",
	})
	require.NoError(t, err)
	return res
}

func successCallback(checkoutID, receipt string) *payment.CallbackResult {
	at := paidAt
	return &payment.CallbackResult{
		CheckoutRequestID:  checkoutID,
		ResultCode:         payment.ResultCodeSuccess,
		ResultDesc:         "The service request is processed successfully.",
		Amount:             decimal.NewFromInt(10000),
		MpesaReceiptNumber: receipt,
		TransactionDate:    &at,
		PhoneNumber:        "254712345678",
	}
}

func TestInitiate_TenantInvoice(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	res := f.initiateTenant(t, svc, "ws_CO_1")

	assert.Equal(t, "ws_CO_1", res.CheckoutRequestID)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "SUN-2503-001-0420", res.AccountReference)

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, payment.StatusPending, txns[0].Status)
	assert.Equal(t, "254712345678", txns[0].PhoneNumber)
	require.NotNil(t, txns[0].InvoiceID)
	assert.Equal(t, f.invoice.ID, *txns[0].InvoiceID)
	assert.Nil(t, txns[0].ResultCode)
	f.gateway.AssertExpectations(t)
}

func TestInitiate_Guards(t *testing.T) {
	t.Run("other tenant is forbidden", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service().Initiate(context.Background(),
			identity.Principal{UserID: uuid.New(), Role: identity.RoleTenant},
			InitiateCommand{Type: payment.TypeTenantPayment, InvoiceID: f.invoice.ID, PhoneNumber: "0712345678"})
		assert.ErrorIs(t, err, shared.ErrForbidden)
		f.gateway.AssertNotCalled(t, "InitiateSTKPush", mock.Anything, mock.Anything)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service().Initiate(context.Background(), f.tenantPrincipal(),
			InitiateCommand{Type: payment.TypeTenantPayment, InvoiceID: uuid.New(), PhoneNumber: "0712345678"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("missing phone", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service().Initiate(context.Background(), f.tenantPrincipal(),
			InitiateCommand{Type: payment.TypeTenantPayment, InvoiceID: f.invoice.ID})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("gateway rejects phone", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("InitiateSTKPush", mock.Anything, mock.Anything).Return(nil, payment.ErrInvalidPhoneNumber).Once()
		_, err := f.service().Initiate(context.Background(), f.tenantPrincipal(),
			InitiateCommand{Type: payment.TypeTenantPayment, InvoiceID: f.invoice.ID, PhoneNumber: "12"})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		assert.Empty(t, f.store.Transactions())
	})

	t.Run("gateway outage records nothing", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("InitiateSTKPush", mock.Anything, mock.Anything).Return(nil, payment.ErrGatewayUnavailable).Once()
		_, err := f.service().Initiate(context.Background(), f.tenantPrincipal(),
			InitiateCommand{Type: payment.TypeTenantPayment, InvoiceID: f.invoice.ID, PhoneNumber: "0712345678"})
		assert.ErrorIs(t, err, payment.ErrGatewayFailure)
		assert.Empty(t, f.store.Transactions())
	})
}

func TestHandleCallback_SettlesTenantInvoice(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.initiateTenant(t, svc, "ws_CO_1")

	body := []byte(`{"Body":{}}`)
	f.gateway.On("ParseCallback", body).Return(successCallback("ws_CO_1", "SLK4H7R2TX"), nil)
	f.metrics.On("ObserveCallback", "success").Once()

	ack, err := svc.HandleCallback(context.Background(), body)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, payment.StatusCompleted, ack.Status)

	invs := f.store.Invoices()
	require.Len(t, invs, 1)
	assert.Equal(t, invoice.StatusPaid, invs[0].Status)
	assert.True(t, invs[0].IsPaid)
	assert.Equal(t, invoice.PaymentMethodMpesa, invs[0].PaymentMethod)
	assert.Equal(t, "SLK4H7R2TX", invs[0].PaymentReference)
	assert.Equal(t, "RCT-250304-SUN-2503-001-0420", invs[0].ReceiptNumber)
	assert.False(t, invs[0].IsLate)

	txns := f.store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, payment.StatusCompleted, txns[0].Status)
	assert.Equal(t, "SLK4H7R2TX", txns[0].ReceiptNumber)

	assert.Equal(t, []string{invoice.EventTypeInvoicePaid}, f.publisher.EventTypes())
	f.metrics.AssertExpectations(t)
}

func TestHandleCallback_DuplicateIsAcknowledgedOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.initiateTenant(t, svc, "ws_CO_1")

	body := []byte(`{"Body":{}}`)
	f.gateway.On("ParseCallback", body).Return(successCallback("ws_CO_1", "SLK4H7R2TX"), nil)
	f.metrics.On("ObserveCallback", "success").Once()
	f.metrics.On("ObserveCallback", "duplicate").Once()

	_, err := svc.HandleCallback(context.Background(), body)
	require.NoError(t, err)

	ack, err := svc.HandleCallback(context.Background(), body)
	require.NoError(t, err)
	assert.False(t, ack.Success)
	assert.Equal(t, payment.ResultCodeSuccess, ack.ResultCode)
	assert.Equal(t, "Transaction already processed", ack.Message)

	// one paid event only
	assert.Len(t, f.publisher.Events(), 1)
	f.metrics.AssertExpectations(t)
}

func TestHandleCallback_FailureLeavesInvoiceUnpaid(t *testing.T) {
	tests := []struct {
		code   int
		status payment.Status
	}{
		{payment.ResultCodeCancelled, payment.StatusCancelled},
		{payment.ResultCodeExpired, payment.StatusExpired},
		{1, payment.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			svc := f.service()
			f.initiateTenant(t, svc, "ws_CO_9")

			body := []byte(`{}`)
			f.gateway.On("ParseCallback", body).Return(&payment.CallbackResult{
				CheckoutRequestID: "ws_CO_9",
				ResultCode:        tt.code,
				ResultDesc:        "Request cancelled by user",
			}, nil)
			f.metrics.On("ObserveCallback", "failed").Once()

			ack, err := svc.HandleCallback(context.Background(), body)
			require.NoError(t, err)
			assert.True(t, ack.Success)
			assert.Equal(t, tt.status, ack.Status)

			invs := f.store.Invoices()
			assert.False(t, invs[0].IsPaid)
			assert.Equal(t, invoice.StatusIssued, invs[0].Status)
			assert.Empty(t, f.publisher.Events())
		})
	}
}

func TestHandleCallback_Errors(t *testing.T) {
	t.Run("unparseable body", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("ParseCallback", mock.Anything).Return(nil, payment.ErrInvalidCallback)
		f.metrics.On("ObserveCallback", "invalid").Once()

		_, err := f.service().HandleCallback(context.Background(), []byte(`nope`))
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("unknown checkout", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.On("ParseCallback", mock.Anything).Return(successCallback("ws_CO_missing", "X"), nil)
		f.metrics.On("ObserveCallback", "error").Once()

		_, err := f.service().HandleCallback(context.Background(), []byte(`{}`))
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestHandleCallback_InvoiceAlreadyPaidManually(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	f.initiateTenant(t, svc, "ws_CO_1")

	inv, err := f.store.InvoiceRepository().FindByID(context.Background(), f.invoice.ID)
	require.NoError(t, err)
	require.NoError(t, inv.MarkPaid(invoice.Payment{Method: invoice.PaymentMethodCash, PaidAt: paidAt}))
	require.NoError(t, f.store.InvoiceRepository().SaveWithLock(context.Background(), inv))

	f.gateway.On("ParseCallback", mock.Anything).Return(successCallback("ws_CO_1", "SLK4H7R2TX"), nil)
	f.metrics.On("ObserveCallback", "success").Once()

	ack, err := svc.HandleCallback(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, invoice.PaymentMethodCash, f.store.Invoices()[0].PaymentMethod)
	assert.Equal(t, payment.StatusCompleted, f.store.Transactions()[0].Status)
}

func TestBillingInvoicePayment(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	account, err := billing.NewAccount(f.developer, decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.NoError(t, f.store.AccountRepository().Save(context.Background(), account))
	bill, err := billing.NewInvoice("INV-JW-0001-202503", account, 2025, 3, []property.Property{f.prop}, decimal.NewFromInt(5000))
	require.NoError(t, err)
	f.store.PutBillingInvoice(bill)

	dev := identity.Principal{UserID: f.developer.ID, Role: identity.RoleDeveloper}

	t.Run("other developer is forbidden", func(t *testing.T) {
		_, err := svc.Initiate(context.Background(),
			identity.Principal{UserID: uuid.New(), Role: identity.RoleDeveloper},
			InitiateCommand{Type: payment.TypeBillingInvoice, InvoiceID: bill.ID, PhoneNumber: "0712345678"})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	f.gateway.On("InitiateSTKPush", mock.Anything, mock.MatchedBy(func(req *payment.STKPushRequest) bool {
		return req.AccountReference == account.AccountReference && req.Amount.Equal(decimal.NewFromInt(5000))
	})).Return(&payment.STKPushResponse{CheckoutRequestID: "ws_CO_B1", PhoneNumber: "254712345678"}, nil).Once()

	res, err := svc.Initiate(context.Background(), dev,
		InitiateCommand{Type: payment.TypeBillingInvoice, InvoiceID: bill.ID, PhoneNumber: "0712345678"})
	require.NoError(t, err)
	assert.Equal(t, account.AccountReference, res.AccountReference)

	f.gateway.On("ParseCallback", mock.Anything).Return(successCallback("ws_CO_B1", "SLK9B"), nil)
	f.metrics.On("ObserveCallback", "success").Once()

	_, err = svc.HandleCallback(context.Background(), []byte(`{}`))
	require.NoError(t, err)

	bills := f.store.BillingInvoices()
	require.Len(t, bills, 1)
	assert.True(t, bills[0].IsPaid)
	assert.Equal(t, billing.StatusPaid, bills[0].Status)
	assert.Equal(t, "SLK9B", bills[0].PaymentReference)
	assert.Equal(t, "mpesa", bills[0].PaymentMethod)
	assert.Equal(t, []string{billing.EventTypeBillingInvoicePaid}, f.publisher.EventTypes())

	t.Run("paid invoice cannot be pushed again", func(t *testing.T) {
		_, err := svc.Initiate(context.Background(), dev,
			InitiateCommand{Type: payment.TypeBillingInvoice, InvoiceID: bill.ID, PhoneNumber: "0712345678"})
		assert.ErrorIs(t, err, billing.ErrInvoicePaid)
	})
}

func TestWatch(t *testing.T) {
	t.Run("delivers the settled outcome", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service()
		svc.waitWindow = 5 * time.Second
		f.initiateTenant(t, svc, "ws_CO_1")
		f.gateway.On("ParseCallback", mock.Anything).Return(successCallback("ws_CO_1", "SLK4H7R2TX"), nil)
		f.metrics.On("ObserveCallback", "success").Once()

		done := make(chan *WatchResult, 1)
		go func() {
			res, err := svc.Watch(context.Background(), f.tenantPrincipal(), "ws_CO_1")
			if err == nil {
				done <- res
			}
			close(done)
		}()
		require.Eventually(t, func() bool { return f.broker.subscribers("ws_CO_1") == 1 }, time.Second, 5*time.Millisecond)

		_, err := svc.HandleCallback(context.Background(), []byte(`{}`))
		require.NoError(t, err)

		select {
		case res := <-done:
			require.NotNil(t, res)
			assert.Equal(t, payment.OutcomeSuccess, res.Outcome)
			assert.Equal(t, "SLK4H7R2TX", res.Update.ReceiptNumber)
		case <-time.After(2 * time.Second):
			t.Fatal("watch did not return")
		}
	})

	t.Run("already settled returns immediately", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service()
		f.initiateTenant(t, svc, "ws_CO_1")
		f.gateway.On("ParseCallback", mock.Anything).Return(&payment.CallbackResult{CheckoutRequestID: "ws_CO_1", ResultCode: payment.ResultCodeCancelled}, nil)
		f.metrics.On("ObserveCallback", "failed").Once()
		_, err := svc.HandleCallback(context.Background(), []byte(`{}`))
		require.NoError(t, err)

		res, err := svc.Watch(context.Background(), f.tenantPrincipal(), "ws_CO_1")
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeFailed, res.Outcome)
		assert.Zero(t, f.broker.subscribers("ws_CO_1"))
	})

	t.Run("times out without changing the transaction", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service()
		f.initiateTenant(t, svc, "ws_CO_1")

		res, err := svc.Watch(context.Background(), f.tenantPrincipal(), "ws_CO_1")
		require.NoError(t, err)
		assert.Equal(t, payment.OutcomeTimeout, res.Outcome)
		assert.Equal(t, payment.StatusPending, f.store.Transactions()[0].Status)
	})

	t.Run("client disconnect", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service()
		svc.waitWindow = 5 * time.Second
		f.initiateTenant(t, svc, "ws_CO_1")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.Watch(ctx, f.tenantPrincipal(), "ws_CO_1")
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service()
		f.initiateTenant(t, svc, "ws_CO_1")

		_, err := svc.Watch(context.Background(), identity.Principal{UserID: uuid.New(), Role: identity.RoleTenant}, "ws_CO_1")
		assert.ErrorIs(t, err, shared.ErrForbidden)
		assert.Zero(t, f.broker.subscribers("ws_CO_1"), "no subscription before access is granted")
	})

	t.Run("unknown transaction never subscribes", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service()

		_, err := svc.Watch(context.Background(), f.tenantPrincipal(), "ws_CO_missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Zero(t, f.broker.subscribers("ws_CO_missing"))
	})
}
