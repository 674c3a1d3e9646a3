package persistence

import (
	"context"

	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormClientRepository implements sales.ClientRepository using GORM
type GormClientRepository struct {
	db *gorm.DB
}

// NewGormClientRepository creates a new GormClientRepository
func NewGormClientRepository(db *gorm.DB) *GormClientRepository {
	return &GormClientRepository{db: db}
}

// FindByID finds a client by its ID
func (r *GormClientRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Client, error) {
	var model models.ClientModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Client")
	}
	return model.ToDomain(), nil
}

// FindByDocument finds a client by identity document number
func (r *GormClientRepository) FindByDocument(ctx context.Context, documentNumber string) (*sales.Client, error) {
	var model models.ClientModel
	if err := r.db.WithContext(ctx).Where("document_number = ?", documentNumber).First(&model).Error; err != nil {
		return nil, notFound(err, "Client")
	}
	return model.ToDomain(), nil
}

// List returns clients ordered by name. An empty status lists all of them.
func (r *GormClientRepository) List(ctx context.Context, status sales.ClientStatus) ([]sales.Client, error) {
	query := r.db.WithContext(ctx).Model(&models.ClientModel{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var rows []models.ClientModel
	if err := query.Order("full_name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	clients := make([]sales.Client, len(rows))
	for i := range rows {
		clients[i] = *rows[i].ToDomain()
	}
	return clients, nil
}

// Create inserts a new client
func (r *GormClientRepository) Create(ctx context.Context, client *sales.Client) error {
	err := r.db.WithContext(ctx).Create(models.ClientModelFromDomain(client)).Error
	if _, dup := uniqueViolation(err); dup {
		return shared.ErrAlreadyExists.WithMessage("A client with document " + client.DocumentNumber + " already exists")
	}
	return err
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormClientRepository) SaveWithLock(ctx context.Context, client *sales.Client) error {
	current := client.Version
	client.IncrementVersion()
	if err := updateWithLock(ctx, r.db, models.ClientModelFromDomain(client), client.ID, current, "Client"); err != nil {
		client.Version = current
		return err
	}
	return nil
}

var _ sales.ClientRepository = (*GormClientRepository)(nil)
