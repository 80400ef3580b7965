package payment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPending(t *testing.T, typ TransactionType) *Transaction {
	t.Helper()
	tx, err := NewTransaction(NewTransactionParams{
		Response:         &STKPushResponse{CheckoutRequestID: "ws_CO_1", MerchantRequestID: "m-1", PhoneNumber: "254712345678"},
		Type:             typ,
		TargetID:         uuid.New(),
		Amount:           decimal.NewFromInt(22000),
		AccountReference: "SUN-2503-001-1234",
	})
	require.NoError(t, err)
	return tx
}

func TestStatusForResultCode(t *testing.T) {
	assert.Equal(t, StatusCompleted, StatusForResultCode(0))
	assert.Equal(t, StatusCancelled, StatusForResultCode(1032))
	assert.Equal(t, StatusExpired, StatusForResultCode(1037))
	assert.Equal(t, StatusFailed, StatusForResultCode(1))
	assert.Equal(t, StatusFailed, StatusForResultCode(2001))
}

func TestNewTransaction(t *testing.T) {
	tenant := newPending(t, TypeTenantPayment)
	assert.Equal(t, StatusPending, tenant.Status)
	assert.NotNil(t, tenant.InvoiceID)
	assert.Nil(t, tenant.BillingInvoiceID)
	assert.False(t, tenant.IsProcessed())

	billing := newPending(t, TypeBillingInvoice)
	assert.Nil(t, billing.InvoiceID)
	assert.NotNil(t, billing.BillingInvoiceID)

	_, err := NewTransaction(NewTransactionParams{Response: &STKPushResponse{}, Type: TypeTenantPayment, TargetID: uuid.New()})
	assert.Error(t, err)
	_, err = NewTransaction(NewTransactionParams{Response: &STKPushResponse{CheckoutRequestID: "x"}, Type: "other", TargetID: uuid.New()})
	assert.Error(t, err)
}

func TestTransaction_ApplyResultOnce(t *testing.T) {
	tx := newPending(t, TypeTenantPayment)
	when := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, tx.ApplyResult(&CallbackResult{ResultCode: 0, ResultDesc: "ok", MpesaReceiptNumber: "QK123", TransactionDate: &when}))
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, "QK123", tx.ReceiptNumber)
	assert.True(t, tx.IsProcessed())

	err := tx.ApplyResult(&CallbackResult{ResultCode: 1032, ResultDesc: "cancelled"})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, 0, *tx.ResultCode)
}

func TestTransaction_FailedResultKeepsNoReceipt(t *testing.T) {
	tx := newPending(t, TypeBillingInvoice)
	require.NoError(t, tx.ApplyResult(&CallbackResult{ResultCode: 1037, ResultDesc: "timeout", MpesaReceiptNumber: "X"}))
	assert.Equal(t, StatusExpired, tx.Status)
	assert.Empty(t, tx.ReceiptNumber)

	u := UpdateFrom(tx)
	assert.Equal(t, "timeout", u.ResultDesc)
	assert.Equal(t, OutcomeFailed, OutcomeFor(u.Status))
	assert.Equal(t, OutcomeSuccess, OutcomeFor(StatusCompleted))
}

func TestSTKPushRequest_Validate(t *testing.T) {
	ok := STKPushRequest{PhoneNumber: "0712345678", Amount: decimal.NewFromInt(10), AccountReference: "A"}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Amount = decimal.Zero
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAmount)

	bad = ok
	bad.PhoneNumber = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPhoneNumber)
}
