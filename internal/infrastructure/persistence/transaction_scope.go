package persistence

import (
	"context"

	"github.com/propledger/backend/internal/application/txn"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/notification"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormTransactionScope implements txn.TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db          *gorm.DB
	defaultRate decimal.Decimal
}

// NewGormTransactionScope creates a new GormTransactionScope. defaultRate
// backs the rate writer exposed inside transactions.
func NewGormTransactionScope(db *gorm.DB, defaultRate decimal.Decimal) *GormTransactionScope {
	return &GormTransactionScope{db: db, defaultRate: defaultRate}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos txn.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, defaultRate: s.defaultRate})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx          *gorm.DB
	defaultRate decimal.Decimal
}

// Savepoint runs fn in a nested transaction. GORM issues SAVEPOINT and
// ROLLBACK TO SAVEPOINT for transactions opened on a transaction handle.
func (r *gormTransactionalRepositories) Savepoint(ctx context.Context, fn func(repos txn.TransactionalRepositories) error) error {
	return r.tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: sp, defaultRate: r.defaultRate})
	})
}

// Invoices returns the invoice repository scoped to the current transaction.
// Its lookups lock the loaded rows.
func (r *gormTransactionalRepositories) Invoices() invoice.Repository {
	return &GormInvoiceRepository{db: r.tx, lock: true}
}

// Reminders returns the reminder repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Reminders() reminder.Repository {
	return NewGormReminderRepository(r.tx)
}

// BillingAccounts returns the billing account repository scoped to the current transaction.
func (r *gormTransactionalRepositories) BillingAccounts() billing.AccountRepository {
	return NewGormBillingAccountRepository(r.tx)
}

// BillingInvoices returns the billing invoice repository scoped to the current transaction.
func (r *gormTransactionalRepositories) BillingInvoices() billing.InvoiceRepository {
	return &GormBillingInvoiceRepository{db: r.tx, lock: true}
}

// Transactions returns the gateway transaction repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Transactions() payment.TransactionRepository {
	return &GormTransactionRepository{db: r.tx, lock: true}
}

// Notifications returns the notification repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Notifications() notification.Repository {
	return NewGormNotificationRepository(r.tx)
}

// JobRuns returns the job run repository scoped to the current transaction.
func (r *gormTransactionalRepositories) JobRuns() job.RunRepository {
	return NewGormJobRunRepository(r.tx)
}

// Rates returns the rate writer scoped to the current transaction.
func (r *gormTransactionalRepositories) Rates() pricing.RateWriter {
	return NewGormRateRegistry(r.tx, r.defaultRate)
}

// Ensure GormTransactionScope implements TransactionScope
var _ txn.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ txn.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
