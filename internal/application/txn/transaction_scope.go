// Package txn defines the unit of work shared by the billing services.
package txn

import (
	"context"

	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/notification"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/reminder"
)

// TransactionScope provides transactional access to the ledger repositories.
// All repository operations inside fn share one database transaction that is
// committed when fn returns nil and rolled back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides the repositories bound to the current
// transaction.
//
// Savepoint runs fn in a nested transaction: an error rolls back only the
// writes made inside fn and is returned to the caller, leaving the outer
// transaction usable. Batch jobs use it for per item isolation.
type TransactionalRepositories interface {
	Invoices() invoice.Repository
	Reminders() reminder.Repository
	BillingAccounts() billing.AccountRepository
	BillingInvoices() billing.InvoiceRepository
	Transactions() payment.TransactionRepository
	Notifications() notification.Repository
	JobRuns() job.RunRepository
	Rates() pricing.RateWriter
	Savepoint(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// Repositories bundles plain repository implementations for NoOpTransactionScope
type Repositories struct {
	Invoices        invoice.Repository
	Reminders       reminder.Repository
	BillingAccounts billing.AccountRepository
	BillingInvoices billing.InvoiceRepository
	Transactions    payment.TransactionRepository
	Notifications   notification.Repository
	JobRuns         job.RunRepository
	Rates           pricing.RateWriter
}

// NoOpTransactionScope runs functions without a real transaction.
// This is useful for testing.
type NoOpTransactionScope struct {
	repos Repositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories
func NewNoOpTransactionScope(repos Repositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Savepoint runs the function without isolation
func (s *NoOpTransactionScope) Savepoint(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Invoices returns the invoices repository
func (s *NoOpTransactionScope) Invoices() invoice.Repository {
	return s.repos.Invoices
}

// Reminders returns the reminders repository
func (s *NoOpTransactionScope) Reminders() reminder.Repository {
	return s.repos.Reminders
}

// BillingAccounts returns the billing account repository
func (s *NoOpTransactionScope) BillingAccounts() billing.AccountRepository {
	return s.repos.BillingAccounts
}

// BillingInvoices returns the billing invoice repository
func (s *NoOpTransactionScope) BillingInvoices() billing.InvoiceRepository {
	return s.repos.BillingInvoices
}

// Transactions returns the transactions repository
func (s *NoOpTransactionScope) Transactions() payment.TransactionRepository {
	return s.repos.Transactions
}

// Notifications returns the notifications repository
func (s *NoOpTransactionScope) Notifications() notification.Repository {
	return s.repos.Notifications
}

// JobRuns returns the job run repository
func (s *NoOpTransactionScope) JobRuns() job.RunRepository {
	return s.repos.JobRuns
}

// Rates returns the rate writer
func (s *NoOpTransactionScope) Rates() pricing.RateWriter {
	return s.repos.Rates
}

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
