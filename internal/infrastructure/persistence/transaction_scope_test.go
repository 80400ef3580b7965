package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/propledger/backend/internal/application/txn"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope_Execute(t *testing.T) {
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New()}

	t.Run("commits when the function succeeds", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		scope := NewGormTransactionScope(db.DB, pricing.DefaultMonthlyRate)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "invoices" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
			n, err := repos.Invoices().MarkReminded(ctx, ids, time.Now())
			assert.Equal(t, int64(1), n)
			return err
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the function fails", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		scope := NewGormTransactionScope(db.DB, pricing.DefaultMonthlyRate)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "invoices" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		err := scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
			if _, err := repos.Invoices().MarkReminded(ctx, ids, time.Now()); err != nil {
				return err
			}
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("savepoint failure rolls back only the nested writes", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		scope := NewGormTransactionScope(db.DB, pricing.DefaultMonthlyRate)
		itemErr := errors.New("item failed")

		mock.ExpectBegin()
		mock.ExpectExec(`SAVEPOINT sp`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`UPDATE "invoices" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`ROLLBACK TO SAVEPOINT sp`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`UPDATE "invoices" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var nestedErr error
		err := scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
			nestedErr = repos.Savepoint(ctx, func(sp txn.TransactionalRepositories) error {
				if _, err := sp.Invoices().MarkReminded(ctx, ids, time.Now()); err != nil {
					return err
				}
				return itemErr
			})
			_, err := repos.Invoices().MarkReminded(ctx, ids, time.Now())
			return err
		})

		require.NoError(t, err)
		assert.ErrorIs(t, nestedErr, itemErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error aborts the transaction", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		scope := NewGormTransactionScope(db.DB, pricing.DefaultMonthlyRate)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "invoices" SET`).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
			_, err := repos.Invoices().MarkReminded(ctx, ids, time.Now())
			return err
		})

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormTransactionScope_LocksLoadedAggregates(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	invoiceRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "invoice_number", "month", "year", "status", "version"}).
			AddRow(id.String(), "SUN-2503-001-0420", 3, 2025, "issued", 1)
	}

	t.Run("scoped lookups select for update", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		scope := NewGormTransactionScope(db.DB, pricing.DefaultMonthlyRate)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM "invoices" WHERE id = .* LIMIT \S+ FOR UPDATE$`).WillReturnRows(invoiceRow())
		mock.ExpectQuery(`FROM "billing_invoices" WHERE id = .* LIMIT \S+ FOR UPDATE$`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(`FROM "mpesa_transactions" WHERE checkout_request_id = .* LIMIT \S+ FOR UPDATE$`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		err := scope.Execute(ctx, func(repos txn.TransactionalRepositories) error {
			inv, err := repos.Invoices().FindByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "SUN-2503-001-0420", inv.InvoiceNumber)

			_, err = repos.BillingInvoices().FindByID(ctx, uuid.New())
			assert.ErrorIs(t, err, shared.ErrNotFound)
			_, err = repos.Transactions().FindByCheckoutID(ctx, "ws_CO_1")
			assert.ErrorIs(t, err, shared.ErrNotFound)
			return nil
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("plain repositories read without locking", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectQuery(`FROM "invoices" WHERE id = .* LIMIT \S+$`).WillReturnRows(invoiceRow())

		_, err := NewGormInvoiceRepository(db.DB).FindByID(ctx, id)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
