package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTransactionRepository implements payment.TransactionRepository using GORM
type GormTransactionRepository struct {
	db   *gorm.DB
	lock bool
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// FindByID finds a transaction by ID
func (r *GormTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	var model models.MpesaTransactionModel
	if err := lockRows(r.db.WithContext(ctx), r.lock).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByCheckoutID finds a transaction by its checkout request ID
func (r *GormTransactionRepository) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*payment.Transaction, error) {
	var model models.MpesaTransactionModel
	if err := lockRows(r.db.WithContext(ctx), r.lock).First(&model, "checkout_request_id = ?", checkoutRequestID).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// Create inserts a new transaction
func (r *GormTransactionRepository) Create(ctx context.Context, t *payment.Transaction) error {
	model := models.MpesaTransactionModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return duplicate(err, shared.ErrAlreadyExists.WithMessage("Checkout request already recorded"))
	}
	return nil
}

// SaveWithLock updates a transaction if the stored version still matches,
// then advances the version. Two callbacks racing on one checkout ID
// resolve here: the loser sees a concurrency conflict.
func (r *GormTransactionRepository) SaveWithLock(ctx context.Context, t *payment.Transaction) error {
	currentVersion := t.Version
	model := models.MpesaTransactionModelFromDomain(t)
	model.Version = currentVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.MpesaTransactionModel{}).
		Where("id = ? AND version = ?", t.ID, currentVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.MpesaTransactionModel{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	t.Version = model.Version
	return nil
}

// Ensure GormTransactionRepository implements payment.TransactionRepository
var _ payment.TransactionRepository = (*GormTransactionRepository)(nil)
