package persistence

import (
	"context"

	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormHouseRepository implements sales.HouseRepository using GORM
type GormHouseRepository struct {
	db *gorm.DB
}

// NewGormHouseRepository creates a new GormHouseRepository
func NewGormHouseRepository(db *gorm.DB) *GormHouseRepository {
	return &GormHouseRepository{db: db}
}

// FindByID finds a house by its ID
func (r *GormHouseRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.House, error) {
	var model models.HouseModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "House")
	}
	return model.ToDomain(), nil
}

// FindByCode finds a house by its unique code
func (r *GormHouseRepository) FindByCode(ctx context.Context, code string) (*sales.House, error) {
	var model models.HouseModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&model).Error; err != nil {
		return nil, notFound(err, "House")
	}
	return model.ToDomain(), nil
}

// List returns houses ordered by code, optionally only the unassigned ones
func (r *GormHouseRepository) List(ctx context.Context, onlyAvailable bool) ([]sales.House, error) {
	query := r.db.WithContext(ctx).Model(&models.HouseModel{})
	if onlyAvailable {
		query = query.Where("assigned_client_id IS NULL")
	}
	var rows []models.HouseModel
	if err := query.Order("code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	houses := make([]sales.House, len(rows))
	for i := range rows {
		houses[i] = *rows[i].ToDomain()
	}
	return houses, nil
}

// Create inserts a new house
func (r *GormHouseRepository) Create(ctx context.Context, house *sales.House) error {
	err := r.db.WithContext(ctx).Create(models.HouseModelFromDomain(house)).Error
	if _, dup := uniqueViolation(err); dup {
		return shared.ErrAlreadyExists.WithMessage("A house with code " + house.Code + " already exists")
	}
	return err
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormHouseRepository) SaveWithLock(ctx context.Context, house *sales.House) error {
	current := house.Version
	house.IncrementVersion()
	if err := updateWithLock(ctx, r.db, models.HouseModelFromDomain(house), house.ID, current, "House"); err != nil {
		house.Version = current
		return err
	}
	return nil
}

var _ sales.HouseRepository = (*GormHouseRepository)(nil)
