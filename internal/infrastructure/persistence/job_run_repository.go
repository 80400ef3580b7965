package persistence

import (
	"context"

	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormJobRunRepository implements job.RunRepository using GORM
type GormJobRunRepository struct {
	db *gorm.DB
}

// NewGormJobRunRepository creates a new GormJobRunRepository
func NewGormJobRunRepository(db *gorm.DB) *GormJobRunRepository {
	return &GormJobRunRepository{db: db}
}

// Create inserts a run record
func (r *GormJobRunRepository) Create(ctx context.Context, run *job.Run) error {
	return r.db.WithContext(ctx).Create(models.JobRunModelFromDomain(run)).Error
}

// FindRecent lists the latest runs of a job, newest first
func (r *GormJobRunRepository) FindRecent(ctx context.Context, name job.Name, limit int) ([]job.Run, error) {
	var rows []models.JobRunModel
	if err := r.db.WithContext(ctx).
		Where("job = ?", string(name)).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]job.Run, 0, len(rows))
	for i := range rows {
		runs = append(runs, rows[i].ToDomain())
	}
	return runs, nil
}

// Ensure GormJobRunRepository implements job.RunRepository
var _ job.RunRepository = (*GormJobRunRepository)(nil)
