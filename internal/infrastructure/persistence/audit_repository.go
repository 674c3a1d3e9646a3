package persistence

import (
	"context"

	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const auditSavepoint = "audit_append"

// GormAuditRepository implements sales.AuditRepository using GORM.
// Inside a transaction each append runs under a savepoint, so a failed
// insert is rolled back alone and the surrounding work can still commit.
type GormAuditRepository struct {
	db   *gorm.DB
	inTx bool
}

// NewGormAuditRepository creates a repository on a plain connection
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// newTxAuditRepository creates a repository bound to an open transaction
func newTxAuditRepository(tx *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: tx, inTx: true}
}

// Append inserts an entry
func (r *GormAuditRepository) Append(ctx context.Context, entry sales.AuditEntry) error {
	model := models.AuditEntryModelFromDomain(entry)
	if !r.inTx {
		return r.db.WithContext(ctx).Create(model).Error
	}

	if err := r.db.SavePoint(auditSavepoint).Error; err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if rbErr := r.db.RollbackTo(auditSavepoint).Error; rbErr != nil {
			return rbErr
		}
		return err
	}
	return nil
}

// ListByClient returns a client's latest entries, newest first
func (r *GormAuditRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]sales.AuditEntry, error) {
	var rows []models.AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]sales.AuditEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

var _ sales.AuditRepository = (*GormAuditRepository)(nil)
