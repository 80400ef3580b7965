package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormBillingAccountRepository implements billing.AccountRepository using GORM
type GormBillingAccountRepository struct {
	db *gorm.DB
}

// NewGormBillingAccountRepository creates a new GormBillingAccountRepository
func NewGormBillingAccountRepository(db *gorm.DB) *GormBillingAccountRepository {
	return &GormBillingAccountRepository{db: db}
}

// FindByDeveloper finds the account of a developer
func (r *GormBillingAccountRepository) FindByDeveloper(ctx context.Context, developerID uuid.UUID) (*billing.Account, error) {
	var model models.BillingAccountModel
	if err := r.db.WithContext(ctx).First(&model, "developer_id = ?", developerID).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// Save creates or updates an account. A second account for the same
// developer is rejected by the unique index.
func (r *GormBillingAccountRepository) Save(ctx context.Context, account *billing.Account) error {
	model := models.BillingAccountModelFromDomain(account)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return duplicate(err, shared.ErrAlreadyExists.WithMessage("Developer already has a billing account"))
	}
	return nil
}

// UpdateAllRates sets the monthly rate of every account
func (r *GormBillingAccountRepository) UpdateAllRates(ctx context.Context, rate decimal.Decimal) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BillingAccountModel{}).
		Where("1 = 1").
		Update("fixed_monthly_rate", rate)
	return result.RowsAffected, result.Error
}

// Ensure GormBillingAccountRepository implements billing.AccountRepository
var _ billing.AccountRepository = (*GormBillingAccountRepository)(nil)

// GormBillingInvoiceRepository implements billing.InvoiceRepository using GORM
type GormBillingInvoiceRepository struct {
	db   *gorm.DB
	lock bool
}

// NewGormBillingInvoiceRepository creates a new GormBillingInvoiceRepository
func NewGormBillingInvoiceRepository(db *gorm.DB) *GormBillingInvoiceRepository {
	return &GormBillingInvoiceRepository{db: db}
}

const billingInvoiceOrder = "year ASC, month ASC, developer_name ASC"

// FindByID finds a billing invoice by ID
func (r *GormBillingInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.BillingInvoiceModel
	if err := lockRows(r.db.WithContext(ctx), r.lock).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindForPeriod finds a developer's invoice for a month
func (r *GormBillingInvoiceRepository) FindForPeriod(ctx context.Context, developerID uuid.UUID, year, month int) (*billing.Invoice, error) {
	var model models.BillingInvoiceModel
	if err := lockRows(r.db.WithContext(ctx), r.lock).
		Where("developer_id = ? AND year = ? AND month = ?", developerID, year, month).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByDeveloperYear lists a developer's invoices for a year in month order
func (r *GormBillingInvoiceRepository) FindByDeveloperYear(ctx context.Context, developerID uuid.UUID, year int) ([]billing.Invoice, error) {
	return r.find(r.db.WithContext(ctx).Where("developer_id = ? AND year = ?", developerID, year))
}

// FindAll lists invoices matching the filter with the total count
func (r *GormBillingInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, int64, error) {
	var total int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.BillingInvoiceModel{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.BillingInvoiceModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.BillingInvoiceModel{}), filter)
	query = applySort(query, filter.Filter, billingInvoiceSortColumns, billingInvoiceOrder)
	if err := applyPagination(query, filter.Filter).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return billingInvoicesToDomain(rows), total, nil
}

// FindUnpaidFrom lists unpaid invoices for the given month and later
func (r *GormBillingInvoiceRepository) FindUnpaidFrom(ctx context.Context, year, month int) ([]billing.Invoice, error) {
	return r.find(r.db.WithContext(ctx).
		Where("is_paid = ? AND (year * 12 + month) >= ?", false, year*12+month))
}

// CountForPeriod counts invoices across developers for a month
func (r *GormBillingInvoiceRepository) CountForPeriod(ctx context.Context, year, month int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BillingInvoiceModel{}).
		Where("year = ? AND month = ?", year, month).
		Count(&count).Error
	return count, err
}

// Create inserts a new invoice
func (r *GormBillingInvoiceRepository) Create(ctx context.Context, inv *billing.Invoice) error {
	model := models.BillingInvoiceModelFromDomain(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return duplicate(err, billing.ErrAlreadyExists)
	}
	return nil
}

// SaveWithLock writes every column of the invoice if the stored version
// still matches, then advances the version
func (r *GormBillingInvoiceRepository) SaveWithLock(ctx context.Context, inv *billing.Invoice) error {
	currentVersion := inv.Version
	model := models.BillingInvoiceModelFromDomain(inv)
	model.Version = currentVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.BillingInvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, currentVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.BillingInvoiceModel{}).Where("id = ?", inv.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	inv.Version = model.Version
	return nil
}

// DeleteUnpaidForYear removes a developer's unpaid invoices of a year that no
// gateway transaction references
func (r *GormBillingInvoiceRepository) DeleteUnpaidForYear(ctx context.Context, developerID uuid.UUID, year int) (int64, error) {
	referenced := r.db.Model(&models.MpesaTransactionModel{}).
		Select("1").
		Where("mpesa_transactions.billing_invoice_id = billing_invoices.id")
	result := r.db.WithContext(ctx).
		Where("developer_id = ? AND year = ? AND is_paid = ?", developerID, year, false).
		Where("NOT EXISTS (?)", referenced).
		Delete(&models.BillingInvoiceModel{})
	return result.RowsAffected, result.Error
}

func (r *GormBillingInvoiceRepository) find(query *gorm.DB) ([]billing.Invoice, error) {
	var rows []models.BillingInvoiceModel
	if err := query.Order(billingInvoiceOrder).Find(&rows).Error; err != nil {
		return nil, err
	}
	return billingInvoicesToDomain(rows), nil
}

func (r *GormBillingInvoiceRepository) applyFilter(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if filter.DeveloperID != nil {
		query = query.Where("developer_id = ?", *filter.DeveloperID)
	}
	if filter.Year != nil {
		query = query.Where("year = ?", *filter.Year)
	}
	if filter.Month != nil {
		query = query.Where("month = ?", *filter.Month)
	}
	if filter.IsPaid != nil {
		query = query.Where("is_paid = ?", *filter.IsPaid)
	}
	if filter.Search != "" {
		query = query.Where("invoice_number LIKE ? OR developer_name LIKE ?", "%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	return query
}

func billingInvoicesToDomain(rows []models.BillingInvoiceModel) []billing.Invoice {
	out := make([]billing.Invoice, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out
}

// Ensure GormBillingInvoiceRepository implements billing.InvoiceRepository
var _ billing.InvoiceRepository = (*GormBillingInvoiceRepository)(nil)
