package sales

import (
	"context"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/google/uuid"
)

// HouseRepository persists houses. FindByID returns shared.ErrNotFound for
// a missing house. SaveWithLock fails with shared.ErrConcurrencyConflict
// when the stored version moved, and shared.ErrStaleReference when the row
// is gone.
type HouseRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*House, error)
	FindByCode(ctx context.Context, code string) (*House, error)
	List(ctx context.Context, onlyAvailable bool) ([]House, error)
	Create(ctx context.Context, house *House) error
	SaveWithLock(ctx context.Context, house *House) error
}

// ClientRepository persists clients and their process state.
type ClientRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Client, error)
	FindByDocument(ctx context.Context, documentNumber string) (*Client, error)
	List(ctx context.Context, status ClientStatus) ([]Client, error)
	Create(ctx context.Context, client *Client) error
	SaveWithLock(ctx context.Context, client *Client) error
}

// PaymentRepository persists payments.
type PaymentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]Payment, error)
	ListByHouseAndClient(ctx context.Context, houseID, clientID uuid.UUID) ([]Payment, error)
	FindActiveBySource(ctx context.Context, clientID uuid.UUID, source process.FundingSource) ([]Payment, error)
	Create(ctx context.Context, payment *Payment) error
	SaveWithLock(ctx context.Context, payment *Payment) error
}

// RenunciationRepository persists renunciation records.
type RenunciationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Renunciation, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]Renunciation, error)
	Create(ctx context.Context, r *Renunciation) error
	SaveWithLock(ctx context.Context, r *Renunciation) error
	// Delete removes the record if its version still matches.
	Delete(ctx context.Context, r *Renunciation) error
}

// AuditRepository is the readable side of the audit trail.
type AuditRepository interface {
	AuditTrail
	ListByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]AuditEntry, error)
}
