package sales

import (
	"context"

	"github.com/casaviva/backoffice/internal/domain/sales"
)

// TransactionScope runs a unit of work atomically. If fn returns an error
// the transaction is rolled back; otherwise it is committed.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to every repository a ledger
// operation touches. All of them share the same underlying transaction.
//
//   - HouseRepo: house balance and assignment.
//   - ClientRepo: client status, financial plan and step states.
//   - PaymentRepo: payment records.
//   - RenunciationRepo: withdrawal and refund records.
//   - AuditRepo: best-effort activity sink. A failed append never aborts
//     the transaction.
type TransactionalRepositories interface {
	HouseRepo() sales.HouseRepository
	ClientRepo() sales.ClientRepository
	PaymentRepo() sales.PaymentRepository
	RenunciationRepo() sales.RenunciationRepository
	AuditRepo() sales.AuditTrail
}

// EvidenceResolver turns a stored blob key into a retrievable URL.
type EvidenceResolver interface {
	ResolveEvidenceURL(ctx context.Context, key string) (string, error)
}
