package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingTransaction(t *testing.T, checkoutID string) *payment.Transaction {
	t.Helper()
	propertyID := uuid.New()
	tx, err := payment.NewTransaction(payment.NewTransactionParams{
		Response: &payment.STKPushResponse{
			CheckoutRequestID: checkoutID,
			MerchantRequestID: "29115-34620561-1",
			PhoneNumber:       "254712345678",
		},
		Type:             payment.TypeTenantPayment,
		TargetID:         uuid.New(),
		PropertyID:       &propertyID,
		Amount:           kes(22000),
		AccountReference: "SUN-2503-001-0420",
		Description:      "Rent March 2025",
	})
	require.NoError(t, err)
	return tx
}

func TestGormTransactionRepository(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormTransactionRepository(db)
	ctx := context.Background()

	tx := newPendingTransaction(t, "ws_CO_191220191020363925")
	require.NoError(t, repo.Create(ctx, tx))

	t.Run("finds by checkout id", func(t *testing.T) {
		found, err := repo.FindByCheckoutID(ctx, "ws_CO_191220191020363925")
		require.NoError(t, err)
		assert.Equal(t, tx.ID, found.ID)
		assert.Equal(t, payment.StatusPending, found.Status)
		assert.Equal(t, payment.TypeTenantPayment, found.TransactionType)
		require.NotNil(t, found.InvoiceID)
		assert.Equal(t, *tx.InvoiceID, *found.InvoiceID)
		assert.Nil(t, found.BillingInvoiceID)
		assert.Nil(t, found.ResultCode)
		assert.True(t, found.Amount.Equal(kes(22000)))
	})

	t.Run("checkout id is unique", func(t *testing.T) {
		err := repo.Create(ctx, newPendingTransaction(t, "ws_CO_191220191020363925"))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("records the callback once", func(t *testing.T) {
		paidAt := time.Date(2025, 3, 4, 10, 20, 36, 0, time.UTC)
		require.NoError(t, tx.ApplyResult(&payment.CallbackResult{
			CheckoutRequestID:  tx.CheckoutRequestID,
			ResultCode:         payment.ResultCodeSuccess,
			ResultDesc:         "The service request is processed successfully.",
			MpesaReceiptNumber: "NLJ7RT61SV",
			TransactionDate:    &paidAt,
		}))

		first, err := repo.FindByCheckoutID(ctx, tx.CheckoutRequestID)
		require.NoError(t, err)

		require.NoError(t, repo.SaveWithLock(ctx, tx))

		stored, err := repo.FindByID(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, stored.Status)
		assert.Equal(t, "NLJ7RT61SV", stored.ReceiptNumber)
		require.NotNil(t, stored.ResultCode)
		assert.Equal(t, 0, *stored.ResultCode)
		assert.True(t, stored.IsProcessed())

		require.NoError(t, first.ApplyResult(&payment.CallbackResult{ResultCode: payment.ResultCodeCancelled, ResultDesc: "Request cancelled by user"}))
		err = repo.SaveWithLock(ctx, first)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("unknown checkout id", func(t *testing.T) {
		_, err := repo.FindByCheckoutID(ctx, "ws_CO_missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
