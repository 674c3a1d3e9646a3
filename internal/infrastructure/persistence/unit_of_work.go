package persistence

import (
	"context"

	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/sales"
	"gorm.io/gorm"
)

var (
	_ appsales.TransactionScope          = (*GormTransactionScope)(nil)
	_ appsales.TransactionalRepositories = (*txRepositories)(nil)
)

// GormTransactionScope opens one database transaction per ledger operation.
// A panic inside fn rolls back before it propagates.
type GormTransactionScope struct {
	db *gorm.DB
}

func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

func (s *GormTransactionScope) Execute(ctx context.Context, fn func(appsales.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(bind(tx))
	})
}

// txRepositories is built once per transaction, so repeated accessor calls
// hand back the same repository.
type txRepositories struct {
	houses        *GormHouseRepository
	clients       *GormClientRepository
	payments      *GormPaymentRepository
	renunciations *GormRenunciationRepository
	audit         *GormAuditRepository
}

func bind(tx *gorm.DB) *txRepositories {
	return &txRepositories{
		houses:        NewGormHouseRepository(tx),
		clients:       NewGormClientRepository(tx),
		payments:      NewGormPaymentRepository(tx),
		renunciations: NewGormRenunciationRepository(tx),
		audit:         newTxAuditRepository(tx),
	}
}

func (r *txRepositories) HouseRepo() sales.HouseRepository               { return r.houses }
func (r *txRepositories) ClientRepo() sales.ClientRepository             { return r.clients }
func (r *txRepositories) PaymentRepo() sales.PaymentRepository           { return r.payments }
func (r *txRepositories) RenunciationRepo() sales.RenunciationRepository { return r.renunciations }

// AuditRepo appends inside a savepoint; see GormAuditRepository.Append.
func (r *txRepositories) AuditRepo() sales.AuditTrail { return r.audit }
