package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReminderRepository implements reminder.Repository using GORM
type GormReminderRepository struct {
	db *gorm.DB
}

// NewGormReminderRepository creates a new GormReminderRepository
func NewGormReminderRepository(db *gorm.DB) *GormReminderRepository {
	return &GormReminderRepository{db: db}
}

// FindByInvoice finds the reminder of an invoice
func (r *GormReminderRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) (*reminder.Reminder, error) {
	var model models.ReminderModel
	if err := r.db.WithContext(ctx).First(&model, "invoice_id = ?", invoiceID).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// Save upserts a reminder keyed by its invoice
func (r *GormReminderRepository) Save(ctx context.Context, rem *reminder.Reminder) error {
	model := models.ReminderModelFromDomain(rem)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "invoice_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"amount_due", "days_overdue", "severity", "status", "message", "last_sent_at", "updated_at",
			}),
		}).
		Create(model).Error
}

// FindAll lists reminders matching the filter, most overdue first
func (r *GormReminderRepository) FindAll(ctx context.Context, filter reminder.Filter) ([]reminder.Reminder, int64, error) {
	var total int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.ReminderModel{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ReminderModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.ReminderModel{}), filter)
	query = applySort(query, filter.Filter, reminderSortColumns, "days_overdue DESC")
	if err := applyPagination(query, filter.Filter).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	reminders := make([]reminder.Reminder, 0, len(rows))
	for i := range rows {
		reminders = append(reminders, *rows[i].ToDomain())
	}
	return reminders, total, nil
}

func (r *GormReminderRepository) applyFilter(query *gorm.DB, filter reminder.Filter) *gorm.DB {
	if filter.PropertyID != nil {
		query = query.Where("property_id = ?", *filter.PropertyID)
	}
	if filter.PropertyIDs != nil {
		if len(filter.PropertyIDs) == 0 {
			return query.Where("1 = 0")
		}
		query = query.Where("property_id IN ?", filter.PropertyIDs)
	}
	if filter.Period != nil {
		query = query.Where("month = ? AND year = ?", filter.Period.Month, filter.Period.Year)
	}
	if filter.Severity != nil {
		query = query.Where("severity = ?", *filter.Severity)
	}
	return query
}

// Ensure GormReminderRepository implements reminder.Repository
var _ reminder.Repository = (*GormReminderRepository)(nil)
