package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Transaction errors
var (
	ErrAlreadyProcessed = shared.NewDomainError("ALREADY_PROCESSED", "Transaction has already been processed")
	ErrGatewayFailure   = shared.NewDomainError("GATEWAY_ERROR", "Payment gateway request failed")
)

// Status of a gateway transaction
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
	StatusExpired   Status = "Expired"
)

// IsTerminal returns true once the callback has been applied
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// StatusForResultCode maps a gateway result code to a status
func StatusForResultCode(code int) Status {
	switch code {
	case ResultCodeSuccess:
		return StatusCompleted
	case ResultCodeCancelled:
		return StatusCancelled
	case ResultCodeExpired:
		return StatusExpired
	default:
		return StatusFailed
	}
}

// TransactionType routes a callback to the ledger it settles
type TransactionType string

const (
	TypeTenantPayment  TransactionType = "tenant_payment"
	TypeBillingInvoice TransactionType = "billing_invoice"
)

// IsValid checks if the transaction type is known
func (t TransactionType) IsValid() bool {
	return t == TypeTenantPayment || t == TypeBillingInvoice
}

// Transaction is one push payment attempt
type Transaction struct {
	shared.BaseAggregateRoot
	CheckoutRequestID string
	MerchantRequestID string
	TransactionType   TransactionType
	InvoiceID         *uuid.UUID // tenant_payment
	BillingInvoiceID  *uuid.UUID // billing_invoice
	PropertyID        *uuid.UUID
	Amount            decimal.Decimal
	PhoneNumber       string
	AccountReference  string
	Description       string
	Status            Status
	ResultCode        *int
	ResultDesc        *string
	ReceiptNumber     string
	TransactionDate   *time.Time
	InitiatedBy       *uuid.UUID
}

// NewTransactionParams holds the inputs for NewTransaction
type NewTransactionParams struct {
	Response         *STKPushResponse
	Type             TransactionType
	TargetID         uuid.UUID
	PropertyID       *uuid.UUID
	Amount           decimal.Decimal
	AccountReference string
	Description      string
	InitiatedBy      *uuid.UUID
}

// NewTransaction records a pending push keyed by the checkout request ID
func NewTransaction(p NewTransactionParams) (*Transaction, error) {
	if p.Response == nil || p.Response.CheckoutRequestID == "" {
		return nil, shared.ErrInvalidInput.WithMessage("Checkout request ID is required")
	}
	if !p.Type.IsValid() {
		return nil, shared.ErrInvalidInput.WithMessage(fmt.Sprintf("Unknown transaction type %q", p.Type))
	}
	if p.TargetID == uuid.Nil {
		return nil, shared.ErrInvalidInput.WithMessage("Transaction target is required")
	}

	t := &Transaction{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CheckoutRequestID: p.Response.CheckoutRequestID,
		MerchantRequestID: p.Response.MerchantRequestID,
		TransactionType:   p.Type,
		PropertyID:        p.PropertyID,
		Amount:            p.Amount,
		PhoneNumber:       p.Response.PhoneNumber,
		AccountReference:  p.AccountReference,
		Description:       p.Description,
		Status:            StatusPending,
		InitiatedBy:       p.InitiatedBy,
	}
	target := p.TargetID
	if p.Type == TypeTenantPayment {
		t.InvoiceID = &target
	} else {
		t.BillingInvoiceID = &target
	}
	return t, nil
}

// IsProcessed reports whether a callback result has been recorded
func (t *Transaction) IsProcessed() bool {
	return t.ResultCode != nil
}

// ApplyResult records the callback outcome exactly once
func (t *Transaction) ApplyResult(cb *CallbackResult) error {
	if t.IsProcessed() {
		return ErrAlreadyProcessed.WithMessage(fmt.Sprintf("Transaction %s already has result code %d", t.CheckoutRequestID, *t.ResultCode))
	}
	code := cb.ResultCode
	desc := cb.ResultDesc
	t.ResultCode = &code
	t.ResultDesc = &desc
	t.Status = StatusForResultCode(code)
	if cb.IsSuccess() {
		t.ReceiptNumber = cb.MpesaReceiptNumber
		t.TransactionDate = cb.TransactionDate
	}
	t.UpdatedAt = time.Now()
	return nil
}

// Update is the change notification published when a transaction settles
type Update struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	Status            Status `json:"status"`
	ResultCode        *int   `json:"result_code,omitempty"`
	ResultDesc        string `json:"result_desc,omitempty"`
	ReceiptNumber     string `json:"receipt_number,omitempty"`
}

// UpdateFrom builds a change notification from a transaction
func UpdateFrom(t *Transaction) Update {
	u := Update{
		CheckoutRequestID: t.CheckoutRequestID,
		Status:            t.Status,
		ResultCode:        t.ResultCode,
		ReceiptNumber:     t.ReceiptNumber,
	}
	if t.ResultDesc != nil {
		u.ResultDesc = *t.ResultDesc
	}
	return u
}

// Outcome is the terminal message delivered to a waiting client
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
)

// OutcomeFor maps a settled status to the stream outcome
func OutcomeFor(s Status) Outcome {
	if s == StatusCompleted {
		return OutcomeSuccess
	}
	return OutcomeFailed
}
