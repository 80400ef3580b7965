package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(t *testing.T, name string) *billing.Account {
	t.Helper()
	acct, err := billing.NewAccount(property.Contact{ID: uuid.New(), Name: name, Email: "dev@example.com"}, kes(5000))
	require.NoError(t, err)
	return acct
}

func newBillingInvoice(t *testing.T, acct *billing.Account, year, month int, props ...property.Property) *billing.Invoice {
	t.Helper()
	if len(props) == 0 {
		props = []property.Property{{ID: uuid.New(), Name: "Sunset Apartments"}}
	}
	number := fmt.Sprintf("BILL-%d%02d-%s", year, month, acct.AccountReference)
	inv, err := billing.NewInvoice(number, acct, year, month, props, acct.FixedMonthlyRate)
	require.NoError(t, err)
	return inv
}

func TestGormBillingAccountRepository(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormBillingAccountRepository(db)
	ctx := context.Background()

	acct := newTestAccount(t, "Jane Wanjiru")
	require.NoError(t, repo.Save(ctx, acct))

	t.Run("finds by developer", func(t *testing.T) {
		found, err := repo.FindByDeveloper(ctx, acct.DeveloperID)
		require.NoError(t, err)
		assert.Equal(t, acct.ID, found.ID)
		assert.Equal(t, "Jane Wanjiru", found.DeveloperName)
		assert.Equal(t, acct.AccountReference, found.AccountReference)
		assert.True(t, found.IsActive)
		assert.True(t, found.FixedMonthlyRate.Equal(kes(5000)))
	})

	t.Run("save updates an existing account", func(t *testing.T) {
		require.NoError(t, acct.SetRate(kes(6500)))
		require.NoError(t, repo.Save(ctx, acct))

		found, err := repo.FindByDeveloper(ctx, acct.DeveloperID)
		require.NoError(t, err)
		assert.True(t, found.FixedMonthlyRate.Equal(kes(6500)))
	})

	t.Run("second account for a developer is rejected", func(t *testing.T) {
		again, err := billing.NewAccount(property.Contact{ID: acct.DeveloperID, Name: "Jane"}, kes(5000))
		require.NoError(t, err)
		err = repo.Save(ctx, again)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("updates every rate", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, newTestAccount(t, "Otieno Holdings")))
		n, err := repo.UpdateAllRates(ctx, kes(7000))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		found, err := repo.FindByDeveloper(ctx, acct.DeveloperID)
		require.NoError(t, err)
		assert.True(t, found.FixedMonthlyRate.Equal(kes(7000)))
	})

	t.Run("unknown developer is not found", func(t *testing.T) {
		_, err := repo.FindByDeveloper(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormBillingInvoiceRepository_CreateAndFind(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormBillingInvoiceRepository(db)
	ctx := context.Background()
	acct := newTestAccount(t, "Jane Wanjiru")

	props := []property.Property{
		{ID: uuid.New(), Name: "Sunset Apartments"},
		{ID: uuid.New(), Name: "Baobab Court"},
	}
	inv := newBillingInvoice(t, acct, 2025, 3, props...)
	require.NoError(t, repo.Create(ctx, inv))

	found, err := repo.FindForPeriod(ctx, acct.DeveloperID, 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, found.ID)
	require.Len(t, found.Properties, 2)
	assert.Equal(t, "Baobab Court", found.Properties[1].PropertyName)
	assert.True(t, found.TotalAmount.Equal(kes(10000)))
	assert.Equal(t, billing.StatusIssued, found.Status)

	t.Run("one invoice per developer and month", func(t *testing.T) {
		dup := newBillingInvoice(t, acct, 2025, 3)
		dup.InvoiceNumber = "BILL-DUPLICATE"
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, billing.ErrAlreadyExists)
	})

	t.Run("missing month is not found", func(t *testing.T) {
		_, err := repo.FindForPeriod(ctx, acct.DeveloperID, 2025, 4)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	count, err := repo.CountForPeriod(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGormBillingInvoiceRepository_YearQueries(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormBillingInvoiceRepository(db)
	ctx := context.Background()
	acct := newTestAccount(t, "Jane Wanjiru")
	other := newTestAccount(t, "Otieno Holdings")

	for month := 1; month <= 12; month++ {
		require.NoError(t, repo.Create(ctx, newBillingInvoice(t, acct, 2025, month)))
	}
	require.NoError(t, repo.Create(ctx, newBillingInvoice(t, other, 2025, 6)))

	jan, err := repo.FindForPeriod(ctx, acct.DeveloperID, 2025, 1)
	require.NoError(t, err)
	require.NoError(t, jan.MarkPaid("QK12ABC", "mpesa", time.Date(2025, 1, 4, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, repo.SaveWithLock(ctx, jan))

	t.Run("lists a developer's year in month order", func(t *testing.T) {
		invs, err := repo.FindByDeveloperYear(ctx, acct.DeveloperID, 2025)
		require.NoError(t, err)
		require.Len(t, invs, 12)
		for i, inv := range invs {
			assert.Equal(t, i+1, inv.Month)
		}
		assert.True(t, invs[0].IsPaid)
	})

	t.Run("unpaid from the current month", func(t *testing.T) {
		invs, err := repo.FindUnpaidFrom(ctx, 2025, 11)
		require.NoError(t, err)
		assert.Len(t, invs, 2)
	})

	t.Run("filters and counts", func(t *testing.T) {
		paid := false
		invs, total, err := repo.FindAll(ctx, billing.InvoiceFilter{
			Filter:      shared.Filter{Page: 2, PageSize: 5},
			DeveloperID: &acct.DeveloperID,
			IsPaid:      &paid,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(11), total)
		assert.Len(t, invs, 5)
	})

	t.Run("force regeneration deletes only unpaid invoices without transactions", func(t *testing.T) {
		feb, err := repo.FindForPeriod(ctx, acct.DeveloperID, 2025, 2)
		require.NoError(t, err)
		pending, err := payment.NewTransaction(payment.NewTransactionParams{
			Response:         &payment.STKPushResponse{CheckoutRequestID: "ws_CO_020220251200", PhoneNumber: "254712345678"},
			Type:             payment.TypeBillingInvoice,
			TargetID:         feb.ID,
			Amount:           feb.TotalAmount,
			AccountReference: feb.InvoiceNumber,
		})
		require.NoError(t, err)
		require.NoError(t, NewGormTransactionRepository(db).Create(ctx, pending))

		n, err := repo.DeleteUnpaidForYear(ctx, acct.DeveloperID, 2025)
		require.NoError(t, err)
		assert.Equal(t, int64(10), n)

		invs, err := repo.FindByDeveloperYear(ctx, acct.DeveloperID, 2025)
		require.NoError(t, err)
		require.Len(t, invs, 2)
		assert.Equal(t, jan.ID, invs[0].ID)
		assert.Equal(t, feb.ID, invs[1].ID)

		untouched, err := repo.FindByDeveloperYear(ctx, other.DeveloperID, 2025)
		require.NoError(t, err)
		assert.Len(t, untouched, 1)
	})
}

func TestGormBillingInvoiceRepository_SaveWithLock(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewGormBillingInvoiceRepository(db)
	ctx := context.Background()
	acct := newTestAccount(t, "Jane Wanjiru")

	inv := newBillingInvoice(t, acct, 2025, 5)
	require.NoError(t, repo.Create(ctx, inv))

	stale, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)

	added, err := inv.AppendProperty(uuid.New(), "Baobab Court", kes(5000))
	require.NoError(t, err)
	require.True(t, added)
	require.NoError(t, repo.SaveWithLock(ctx, inv))
	assert.Equal(t, 2, inv.Version)

	stored, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Properties, 2)
	assert.True(t, stored.TotalAmount.Equal(kes(10000)))

	require.NoError(t, stale.ApplyRate(kes(6000)))
	err = repo.SaveWithLock(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}
