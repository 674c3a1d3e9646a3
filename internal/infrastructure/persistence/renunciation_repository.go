package persistence

import (
	"context"

	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRenunciationRepository implements sales.RenunciationRepository using GORM
type GormRenunciationRepository struct {
	db *gorm.DB
}

// NewGormRenunciationRepository creates a new GormRenunciationRepository
func NewGormRenunciationRepository(db *gorm.DB) *GormRenunciationRepository {
	return &GormRenunciationRepository{db: db}
}

// FindByID finds a renunciation record by its ID
func (r *GormRenunciationRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Renunciation, error) {
	var model models.RenunciationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Renunciation")
	}
	return model.ToDomain(), nil
}

// ListByClient lists a client's renunciation records, newest first
func (r *GormRenunciationRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]sales.Renunciation, error) {
	var rows []models.RenunciationModel
	if err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]sales.Renunciation, len(rows))
	for i := range rows {
		records[i] = *rows[i].ToDomain()
	}
	return records, nil
}

// Create inserts a new renunciation record
func (r *GormRenunciationRepository) Create(ctx context.Context, record *sales.Renunciation) error {
	return r.db.WithContext(ctx).Create(models.RenunciationModelFromDomain(record)).Error
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormRenunciationRepository) SaveWithLock(ctx context.Context, record *sales.Renunciation) error {
	current := record.Version
	record.IncrementVersion()
	if err := updateWithLock(ctx, r.db, models.RenunciationModelFromDomain(record), record.ID, current, "Renunciation"); err != nil {
		record.Version = current
		return err
	}
	return nil
}

// Delete removes the record if nobody changed it since it was read
func (r *GormRenunciationRepository) Delete(ctx context.Context, record *sales.Renunciation) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", record.ID, record.Version).
		Delete(&models.RenunciationModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.RenunciationModel{}).
			Where("id = ?", record.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrStaleReference.WithMessage("Renunciation " + record.ID.String() + " no longer exists")
		}
		return shared.ErrConcurrencyConflict.WithMessage("Renunciation was modified by another transaction")
	}
	return nil
}

var _ sales.RenunciationRepository = (*GormRenunciationRepository)(nil)
