// Package payment initiates push payments, applies gateway callbacks and
// streams their outcome to waiting clients.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/propledger/backend/internal/application/txn"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	invoiceapp "github.com/propledger/backend/internal/application/invoice"
)

// DefaultWaitWindow is how long a client waits for a callback
const DefaultWaitWindow = 2 * time.Minute

var validate = validator.New()

// InitiateCommand starts a push payment for a tenant or billing invoice
type InitiateCommand struct {
	Type        payment.TransactionType `json:"transaction_type" validate:"required"`
	InvoiceID   uuid.UUID               `json:"invoice_id" validate:"required"`
	PhoneNumber string                  `json:"phone_number" validate:"required,max=20"`
}

// InitiateResult is returned to the client that started a push
type InitiateResult struct {
	TransactionID     uuid.UUID       `json:"transaction_id"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	MerchantRequestID string          `json:"merchant_request_id"`
	CustomerMessage   string          `json:"customer_message"`
	Amount            decimal.Decimal `json:"amount"`
	AccountReference  string          `json:"account_reference"`
}

// CallbackAck is the acknowledgement sent back to the gateway
type CallbackAck struct {
	Success           bool           `json:"success"`
	CheckoutRequestID string         `json:"checkout_request_id"`
	ResultCode        int            `json:"result_code"`
	Status            payment.Status `json:"status"`
	Message           string         `json:"message"`
}

// CallbackMetrics counts callbacks by outcome
type CallbackMetrics interface {
	ObserveCallback(outcome string)
}

type nopCallbackMetrics struct{}

func (nopCallbackMetrics) ObserveCallback(string) {}

// MpesaService drives STK push payments end to end
type MpesaService struct {
	scope      txn.TransactionScope
	txns       payment.TransactionRepository
	invoices   invoice.Repository
	accounts   billing.AccountRepository
	bills      billing.InvoiceRepository
	reader     property.Reader
	gateway    payment.Gateway
	broker     payment.StatusBroker
	publisher  shared.EventPublisher
	metrics    CallbackMetrics
	logger     *zap.Logger
	waitWindow time.Duration
	now        func() time.Time
}

// MpesaServiceConfig wires a MpesaService
type MpesaServiceConfig struct {
	Scope           txn.TransactionScope
	Transactions    payment.TransactionRepository
	Invoices        invoice.Repository
	Accounts        billing.AccountRepository
	BillingInvoices billing.InvoiceRepository
	Reader          property.Reader
	Gateway         payment.Gateway
	Broker          payment.StatusBroker
	Publisher       shared.EventPublisher
	Metrics         CallbackMetrics
	Logger          *zap.Logger
	WaitWindow      time.Duration
}

// NewMpesaService creates a new MpesaService
func NewMpesaService(cfg MpesaServiceConfig) *MpesaService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopCallbackMetrics{}
	}
	if cfg.WaitWindow <= 0 {
		cfg.WaitWindow = DefaultWaitWindow
	}
	return &MpesaService{
		scope:      cfg.Scope,
		txns:       cfg.Transactions,
		invoices:   cfg.Invoices,
		accounts:   cfg.Accounts,
		bills:      cfg.BillingInvoices,
		reader:     cfg.Reader,
		gateway:    cfg.Gateway,
		broker:     cfg.Broker,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		waitWindow: cfg.WaitWindow,
		now:        time.Now,
	}
}

// WithClock overrides the time source
func (s *MpesaService) WithClock(now func() time.Time) *MpesaService {
	s.now = now
	return s
}

// WaitWindow returns how long Watch waits for a callback
func (s *MpesaService) WaitWindow() time.Duration {
	return s.waitWindow
}

// Initiate sends a push prompt and records the pending transaction before
// returning the correlation ID to the client.
func (s *MpesaService) Initiate(ctx context.Context, p identity.Principal, cmd InitiateCommand) (*InitiateResult, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, shared.ErrInvalidInput.WithMessage(err.Error())
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "mpesa", "initiate")
	defer span.End()
	telemetry.SetAttributes(span, "transaction_type", string(cmd.Type), "invoice_id", cmd.InvoiceID.String())

	var (
		params payment.NewTransactionParams
		err    error
	)
	switch cmd.Type {
	case payment.TypeTenantPayment:
		params, err = s.tenantTarget(ctx, p, cmd.InvoiceID)
	case payment.TypeBillingInvoice:
		params, err = s.billingTarget(ctx, p, cmd.InvoiceID)
	default:
		err = shared.ErrInvalidInput.WithMessage(fmt.Sprintf("Unknown transaction type %q", cmd.Type))
	}
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.InitiateSTKPush(ctx, &payment.STKPushRequest{
		PhoneNumber:      cmd.PhoneNumber,
		Amount:           params.Amount,
		AccountReference: params.AccountReference,
		Description:      params.Description,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, gatewayError(err)
	}

	params.Response = resp
	params.InitiatedBy = p.Actor()
	record, err := payment.NewTransaction(params)
	if err != nil {
		return nil, err
	}
	if err := s.txns.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record pending transaction: %w", err)
	}

	s.logger.Info("stk push initiated",
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.String("transaction_type", string(cmd.Type)),
		zap.String("account_reference", params.AccountReference),
	)
	return &InitiateResult{
		TransactionID:     record.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
		Amount:            params.Amount,
		AccountReference:  params.AccountReference,
	}, nil
}

func (s *MpesaService) tenantTarget(ctx context.Context, p identity.Principal, invoiceID uuid.UUID) (payment.NewTransactionParams, error) {
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return payment.NewTransactionParams{}, notFound(err, "Invoice not found")
	}
	if err := invoiceapp.AuthorizeInvoice(ctx, s.reader, p, inv); err != nil {
		return payment.NewTransactionParams{}, err
	}
	if inv.IsPaid || (inv.Status != invoice.StatusDraft && inv.Status != invoice.StatusIssued) {
		return payment.NewTransactionParams{}, shared.ErrInvalidState.WithMessage(fmt.Sprintf("Invoice %s cannot be paid in status %s", inv.InvoiceNumber, inv.Status))
	}
	propertyID := inv.PropertyID
	return payment.NewTransactionParams{
		Type:             payment.TypeTenantPayment,
		TargetID:         inv.ID,
		PropertyID:       &propertyID,
		Amount:           inv.TotalAmount,
		AccountReference: inv.InvoiceNumber,
		Description:      fmt.Sprintf("Rent %s %d", inv.Period.MonthName(), inv.Period.Year),
	}, nil
}

func (s *MpesaService) billingTarget(ctx context.Context, p identity.Principal, invoiceID uuid.UUID) (payment.NewTransactionParams, error) {
	inv, err := s.bills.FindByID(ctx, invoiceID)
	if err != nil {
		return payment.NewTransactionParams{}, notFound(err, "Billing invoice not found")
	}
	if !p.IsAdmin() && !(p.Role == identity.RoleDeveloper && p.UserID == inv.DeveloperID) {
		return payment.NewTransactionParams{}, shared.ErrForbidden.WithMessage("You can only pay your own billing invoices")
	}
	if inv.IsPaid {
		return payment.NewTransactionParams{}, billing.ErrInvoicePaid
	}
	account, err := s.accounts.FindByDeveloper(ctx, inv.DeveloperID)
	if err != nil {
		return payment.NewTransactionParams{}, notFound(err, "Billing account not found")
	}
	return payment.NewTransactionParams{
		Type:             payment.TypeBillingInvoice,
		TargetID:         inv.ID,
		Amount:           inv.TotalAmount,
		AccountReference: account.AccountReference,
		Description:      fmt.Sprintf("Platform fee %s", inv.InvoiceNumber),
	}, nil
}

// HandleCallback applies a gateway result exactly once. A duplicate is
// acknowledged with success=false and the recorded result code.
func (s *MpesaService) HandleCallback(ctx context.Context, body []byte) (*CallbackAck, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "mpesa", "callback")
	defer span.End()

	cb, err := s.gateway.ParseCallback(body)
	if err != nil {
		s.metrics.ObserveCallback("invalid")
		return nil, shared.ErrInvalidInput.WithMessage(err.Error())
	}
	telemetry.SetAttributes(span, "checkout_request_id", cb.CheckoutRequestID, "result_code", cb.ResultCode)

	var (
		record    *payment.Transaction
		duplicate bool
		events    []shared.DomainEvent
	)
	err = s.scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
		var err error
		record, err = repos.Transactions().FindByCheckoutID(ctx, cb.CheckoutRequestID)
		if err != nil {
			return notFound(err, "Transaction not found")
		}
		if err := record.ApplyResult(cb); err != nil {
			if errors.Is(err, payment.ErrAlreadyProcessed) {
				duplicate = true
				return nil
			}
			return err
		}

		if cb.IsSuccess() {
			events, err = s.settle(ctx, repos, record, cb)
			if err != nil {
				return err
			}
		}
		return repos.Transactions().SaveWithLock(ctx, record)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.ObserveCallback("error")
		s.logger.Error("failed to apply gateway callback",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Error(err),
		)
		return nil, err
	}

	if duplicate {
		s.metrics.ObserveCallback("duplicate")
		s.logger.Info("duplicate gateway callback ignored",
			zap.String("checkout_request_id", cb.CheckoutRequestID),
			zap.Int("recorded_result_code", *record.ResultCode),
		)
		return &CallbackAck{
			Success:           false,
			CheckoutRequestID: record.CheckoutRequestID,
			ResultCode:        *record.ResultCode,
			Status:            record.Status,
			Message:           "Transaction already processed",
		}, nil
	}

	s.metrics.ObserveCallback(string(payment.OutcomeFor(record.Status)))
	s.notifyWatchers(ctx, record)
	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("failed to publish payment events", zap.Error(err))
		}
	}
	s.logger.Info("gateway callback applied",
		zap.String("checkout_request_id", record.CheckoutRequestID),
		zap.String("status", string(record.Status)),
		zap.String("receipt", record.ReceiptNumber),
	)
	return &CallbackAck{
		Success:           true,
		CheckoutRequestID: record.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		Status:            record.Status,
		Message:           "Callback processed",
	}, nil
}

// settle marks the target of a successful transaction paid and returns the
// events to publish after commit
func (s *MpesaService) settle(ctx context.Context, repos txn.TransactionalRepositories, t *payment.Transaction, cb *payment.CallbackResult) ([]shared.DomainEvent, error) {
	paidAt := s.now()
	if cb.TransactionDate != nil {
		paidAt = *cb.TransactionDate
	}

	switch t.TransactionType {
	case payment.TypeBillingInvoice:
		inv, err := repos.BillingInvoices().FindByID(ctx, *t.BillingInvoiceID)
		if err != nil {
			return nil, fmt.Errorf("load billing invoice: %w", err)
		}
		if err := inv.MarkPaid(cb.MpesaReceiptNumber, string(invoice.PaymentMethodMpesa), paidAt); err != nil {
			if errors.Is(err, billing.ErrInvoicePaid) {
				s.logger.Warn("billing invoice already paid", zap.String("invoice_id", inv.ID.String()))
				return nil, nil
			}
			return nil, err
		}
		if err := repos.BillingInvoices().SaveWithLock(ctx, inv); err != nil {
			return nil, err
		}
		events := inv.PullDomainEvents()
		return events, nil

	case payment.TypeTenantPayment:
		inv, err := repos.Invoices().FindByID(ctx, *t.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("load invoice: %w", err)
		}
		phone := cb.PhoneNumber
		if phone == "" {
			phone = t.PhoneNumber
		}
		err = inv.MarkPaid(invoice.Payment{
			Method:        invoice.PaymentMethodMpesa,
			Reference:     cb.MpesaReceiptNumber,
			PhoneNumber:   phone,
			ReceiptNumber: invoice.FormatReceiptNumber(inv.InvoiceNumber, paidAt),
			PaidAt:        paidAt,
		})
		if err != nil {
			if errors.Is(err, invoice.ErrAlreadyPaid) {
				s.logger.Warn("invoice already paid before callback", zap.String("invoice_id", inv.ID.String()))
				return nil, nil
			}
			return nil, err
		}
		if err := repos.Invoices().SaveWithLock(ctx, inv); err != nil {
			return nil, err
		}
		events := inv.PullDomainEvents()
		return events, nil
	}
	return nil, shared.ErrInvalidState.WithMessage(fmt.Sprintf("Unknown transaction type %q", t.TransactionType))
}

func (s *MpesaService) notifyWatchers(ctx context.Context, t *payment.Transaction) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, payment.UpdateFrom(t)); err != nil {
		s.logger.Warn("failed to publish transaction update",
			zap.String("checkout_request_id", t.CheckoutRequestID),
			zap.Error(err),
		)
	}
}

// WatchResult is the single terminal message of a status stream
type WatchResult struct {
	Outcome payment.Outcome `json:"outcome"`
	Update  *payment.Update `json:"update,omitempty"`
}

// Watch waits for the transaction to settle. Access is checked before
// subscribing; the stored state is read again after subscribing so no update
// is missed. It gives up with a timeout outcome after the wait window without
// touching the stored status. A cancelled ctx returns ctx.Err().
func (s *MpesaService) Watch(ctx context.Context, p identity.Principal, checkoutRequestID string) (*WatchResult, error) {
	t, err := s.txns.FindByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		return nil, notFound(err, "Transaction not found")
	}
	if !p.IsAdmin() && (t.InitiatedBy == nil || *t.InitiatedBy != p.UserID) {
		return nil, shared.ErrForbidden.WithMessage("You can only follow your own payments")
	}
	if t.Status.IsTerminal() {
		return settled(t), nil
	}

	updates, cancel, err := s.broker.Subscribe(ctx, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("subscribe to transaction updates: %w", err)
	}
	defer cancel()

	if t, err = s.txns.FindByCheckoutID(ctx, checkoutRequestID); err != nil {
		return nil, notFound(err, "Transaction not found")
	}
	if t.Status.IsTerminal() {
		return settled(t), nil
	}

	timer := time.NewTimer(s.waitWindow)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return &WatchResult{Outcome: payment.OutcomeTimeout}, nil
		case u, ok := <-updates:
			if !ok {
				return nil, fmt.Errorf("transaction update stream closed")
			}
			if !u.Status.IsTerminal() {
				continue
			}
			return &WatchResult{Outcome: payment.OutcomeFor(u.Status), Update: &u}, nil
		}
	}
}

func settled(t *payment.Transaction) *WatchResult {
	u := payment.UpdateFrom(t)
	return &WatchResult{Outcome: payment.OutcomeFor(t.Status), Update: &u}
}

func gatewayError(err error) error {
	switch {
	case errors.Is(err, payment.ErrInvalidPhoneNumber),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidAccountRef):
		return shared.ErrInvalidInput.WithMessage(err.Error())
	default:
		return payment.ErrGatewayFailure.WithMessage(err.Error())
	}
}

func notFound(err error, message string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.ErrNotFound.WithMessage(message)
	}
	return err
}
