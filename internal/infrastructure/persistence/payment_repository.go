package persistence

import (
	"context"
	"strings"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActiveDisbursementIndex is the partial unique index that allows one
// active payment per client for each disbursement source.
const ActiveDisbursementIndex = "uq_payments_active_disbursement"

// GormPaymentRepository implements sales.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by its ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Payment")
	}
	return model.ToDomain(), nil
}

// ListByClient lists every payment of a client, newest payment date first
func (r *GormPaymentRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]sales.Payment, error) {
	return r.find(r.db.WithContext(ctx).Where("client_id = ?", clientID))
}

// ListByHouseAndClient lists the payments a client made against a house
func (r *GormPaymentRepository) ListByHouseAndClient(ctx context.Context, houseID, clientID uuid.UUID) ([]sales.Payment, error) {
	return r.find(r.db.WithContext(ctx).Where("house_id = ? AND client_id = ?", houseID, clientID))
}

// FindActiveBySource lists a client's active payments for one source
func (r *GormPaymentRepository) FindActiveBySource(ctx context.Context, clientID uuid.UUID, source process.FundingSource) ([]sales.Payment, error) {
	return r.find(r.db.WithContext(ctx).
		Where("client_id = ? AND source = ? AND status = ?", clientID, string(source), string(sales.PaymentActive)))
}

func (r *GormPaymentRepository) find(query *gorm.DB) ([]sales.Payment, error) {
	var rows []models.PaymentModel
	if err := query.Order("payment_date DESC, created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]sales.Payment, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments, nil
}

// Create inserts a new payment. A clash on the primary key means the same
// request was already recorded; a clash on the disbursement index means
// another active payment exists for the source.
func (r *GormPaymentRepository) Create(ctx context.Context, payment *sales.Payment) error {
	err := r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error
	if constraint, dup := uniqueViolation(err); dup {
		if isActiveDisbursementClash(constraint) {
			return sales.ErrDuplicateActiveDisbursement
		}
		return shared.ErrDuplicateRequest
	}
	return err
}

// SaveWithLock saves with optimistic locking (checks version)
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, payment *sales.Payment) error {
	current := payment.Version
	payment.IncrementVersion()
	err := updateWithLock(ctx, r.db, models.PaymentModelFromDomain(payment), payment.ID, current, "Payment")
	if err != nil {
		payment.Version = current
		if constraint, dup := uniqueViolation(err); dup && isActiveDisbursementClash(constraint) {
			return sales.ErrDuplicateActiveDisbursement
		}
		return err
	}
	return nil
}

// isActiveDisbursementClash matches the index by name (PostgreSQL) or by
// its column list (SQLite, which does not report index names).
func isActiveDisbursementClash(constraint string) bool {
	return strings.Contains(constraint, ActiveDisbursementIndex) ||
		strings.Contains(constraint, "payments.client_id, payments.source")
}

var _ sales.PaymentRepository = (*GormPaymentRepository)(nil)
