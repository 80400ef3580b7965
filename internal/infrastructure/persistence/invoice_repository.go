package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements invoice.Repository using GORM
type GormInvoiceRepository struct {
	db   *gorm.DB
	lock bool
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := lockRows(r.db.WithContext(ctx), r.lock).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindActiveForUnitPeriod finds the non-cancelled invoice of a unit for a period
func (r *GormInvoiceRepository) FindActiveForUnitPeriod(ctx context.Context, unitID uuid.UUID, period invoice.Period) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := lockRows(r.db.WithContext(ctx), r.lock).
		Where("unit_id = ? AND month = ? AND year = ? AND status <> ?", unitID, period.Month, period.Year, invoice.StatusCancelled).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindLeaseInvoice finds the non-cancelled month 0 invoice of one lease of a tenant
func (r *GormInvoiceRepository) FindLeaseInvoice(ctx context.Context, tenantID uuid.UUID, leaseStart time.Time) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := lockRows(r.db.WithContext(ctx), r.lock).
		Where("tenant_id = ? AND month = ? AND lease_start = ? AND status <> ?",
			tenantID, invoice.LeaseMonth, invoice.LeaseKey(leaseStart), invoice.StatusCancelled).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists invoices matching the filter with the total count
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter invoice.Filter) ([]invoice.Invoice, int64, error) {
	var total int64
	countQuery := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.InvoiceModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)
	query = applySort(query, filter.Filter, invoiceSortColumns, "invoice_number ASC")
	if err := applyPagination(query, filter.Filter).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return invoicesToDomain(rows), total, nil
}

type invoiceSummaryRow struct {
	Count            int64
	TotalBilled      decimal.Decimal
	TotalPaid        decimal.Decimal
	TotalOutstanding decimal.Decimal
}

// Summarize totals the invoices matching the filter. Cancelled invoices are
// counted but carry no money.
func (r *GormInvoiceRepository) Summarize(ctx context.Context, filter invoice.Filter) (invoice.Summary, error) {
	var row invoiceSummaryRow
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter).
		Select(`COUNT(*) AS count,
			COALESCE(SUM(CASE WHEN status <> 'cancelled' THEN total_amount ELSE 0 END), 0) AS total_billed,
			COALESCE(SUM(CASE WHEN status <> 'cancelled' AND is_paid THEN total_amount ELSE 0 END), 0) AS total_paid,
			COALESCE(SUM(CASE WHEN status <> 'cancelled' AND NOT is_paid THEN total_amount ELSE 0 END), 0) AS total_outstanding`).
		Scan(&row).Error
	if err != nil {
		return invoice.Summary{}, err
	}
	return invoice.Summary(row), nil
}

// InvoicedUnitIDs lists units holding a non-cancelled invoice for the period
func (r *GormInvoiceRepository) InvoicedUnitIDs(ctx context.Context, period invoice.Period) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("month = ? AND year = ? AND status <> ?", period.Month, period.Year, invoice.StatusCancelled).
		Pluck("unit_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountForPropertyPeriod counts every invoice of a property for a period,
// cancelled ones included, so numbers are never reused.
func (r *GormInvoiceRepository) CountForPropertyPeriod(ctx context.Context, propertyID uuid.UUID, period invoice.Period) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("property_id = ? AND month = ? AND year = ?", propertyID, period.Month, period.Year).
		Count(&count).Error
	return count, err
}

// FindUnpaidIssued lists issued, unpaid invoices of a period
func (r *GormInvoiceRepository) FindUnpaidIssued(ctx context.Context, period invoice.Period) ([]invoice.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("month = ? AND year = ? AND status = ? AND is_paid = ?", period.Month, period.Year, invoice.StatusIssued, false).
		Order("invoice_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

type disbursementJoinRow struct {
	models.InvoiceModel
	UnitNumber  *string
	UnitType    *string
	FloorNumber *int
	TenantName  *string
	OwnerID     *uuid.UUID
	OwnerName   *string
}

// DisbursementRows joins a property's invoices for a period with their unit,
// floor, tenant and owner
func (r *GormInvoiceRepository) DisbursementRows(ctx context.Context, propertyID uuid.UUID, period invoice.Period) ([]invoice.ReportRow, error) {
	var rows []disbursementJoinRow
	if err := r.db.WithContext(ctx).
		Table("invoices AS i").
		Select(`i.*, un.unit_number, un.unit_type, f.floor_number,
			t.name AS tenant_name, un.owner_id, o.name AS owner_name`).
		Joins("LEFT JOIN units un ON un.id = i.unit_id").
		Joins("LEFT JOIN floors f ON f.id = un.floor_id").
		Joins("LEFT JOIN tenants t ON t.id = i.tenant_id").
		Joins("LEFT JOIN users o ON o.id = un.owner_id").
		Where("i.property_id = ? AND i.month = ? AND i.year = ?", propertyID, period.Month, period.Year).
		Order("i.invoice_number ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]invoice.ReportRow, 0, len(rows))
	for i := range rows {
		row := invoice.ReportRow{
			Invoice: *rows[i].InvoiceModel.ToDomain(),
			OwnerID: rows[i].OwnerID,
		}
		if rows[i].UnitNumber != nil {
			row.UnitNumber = *rows[i].UnitNumber
		}
		if rows[i].UnitType != nil {
			row.UnitType = *rows[i].UnitType
		}
		if rows[i].FloorNumber != nil {
			row.FloorNumber = *rows[i].FloorNumber
		}
		if rows[i].TenantName != nil {
			row.TenantName = *rows[i].TenantName
		}
		if rows[i].OwnerName != nil {
			row.OwnerName = *rows[i].OwnerName
		}
		out = append(out, row)
	}
	return out, nil
}

// Create inserts a new invoice. A second active invoice for the same unit
// and period violates the partial unique index.
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return duplicate(err, shared.ErrAlreadyExists.WithMessage("Invoice already exists for this unit and period"))
	}
	return nil
}

// SaveWithLock writes every column of the invoice if the stored version
// still matches, then advances the version
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, inv *invoice.Invoice) error {
	currentVersion := inv.Version
	model := models.InvoiceModelFromDomain(inv)
	model.Version = currentVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, currentVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.lockFailure(ctx, inv.ID)
	}
	inv.Version = model.Version
	return nil
}

func (r *GormInvoiceRepository) lockFailure(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}

// MarkReminded flags invoices late and stamps the reminder date
func (r *GormInvoiceRepository) MarkReminded(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"is_late":            true,
			"last_reminder_date": at,
			"updated_at":         at,
		})
	return result.RowsAffected, result.Error
}

func (r *GormInvoiceRepository) applyFilter(query *gorm.DB, filter invoice.Filter) *gorm.DB {
	if filter.PropertyID != nil {
		query = query.Where("property_id = ?", *filter.PropertyID)
	}
	if filter.PropertyIDs != nil {
		if len(filter.PropertyIDs) == 0 {
			return query.Where("1 = 0")
		}
		query = query.Where("property_id IN ?", filter.PropertyIDs)
	}
	if filter.UnitID != nil {
		query = query.Where("unit_id = ?", *filter.UnitID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Period != nil {
		query = query.Where("month = ? AND year = ?", filter.Period.Month, filter.Period.Year)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.IsPaid != nil {
		query = query.Where("is_paid = ?", *filter.IsPaid)
	}
	if filter.Search != "" {
		query = query.Where("invoice_number LIKE ?", "%"+filter.Search+"%")
	}
	return query
}

func invoicesToDomain(rows []models.InvoiceModel) []invoice.Invoice {
	out := make([]invoice.Invoice, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out
}

// Ensure GormInvoiceRepository implements invoice.Repository
var _ invoice.Repository = (*GormInvoiceRepository)(nil)
