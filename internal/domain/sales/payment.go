package sales

import (
	"strings"
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment. Only active payments
// count toward a house's paid total.
type PaymentStatus string

const (
	PaymentActive   PaymentStatus = "active"
	PaymentVoided   PaymentStatus = "voided"
	PaymentArchived PaymentStatus = "archived"
)

// Payment is an installment ("abono") settled against a house for a client.
type Payment struct {
	shared.BaseAggregateRoot
	HouseID     uuid.UUID
	ClientID    uuid.UUID
	Amount      decimal.Decimal
	PaymentDate time.Time
	Source      process.FundingSource
	Status      PaymentStatus
	ReceiptURL  string
	Note        string
	RecordedBy  string
	// StepSnapshot holds the funded step's state from before the payment
	// was voided so that a reversal restores it exactly.
	StepSnapshot *process.StepState
	VoidReason   string
	VoidedAt     *time.Time
}

// NewPayment creates an active payment. id may be uuid.Nil to generate one.
func NewPayment(id, houseID, clientID uuid.UUID, source process.FundingSource, amount decimal.Decimal, paymentDate time.Time, recordedBy string) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Unknown payment source")
	}
	if paymentDate.IsZero() {
		return nil, shared.NewValidationError("Payment date is required", map[string]string{"payment_date": "required"})
	}
	root := shared.NewBaseAggregateRoot()
	if id != uuid.Nil {
		root = shared.NewBaseAggregateRootWithID(id)
	}
	return &Payment{
		BaseAggregateRoot: root,
		HouseID:           houseID,
		ClientID:          clientID,
		Amount:            amount,
		PaymentDate:       process.Day(paymentDate),
		Source:            source,
		Status:            PaymentActive,
		RecordedBy:        recordedBy,
	}, nil
}

// IsActive reports whether the payment counts toward the house balance.
func (p *Payment) IsActive() bool {
	return p.Status == PaymentActive
}

// IsWaiver reports whether the payment closes out a forgiven balance.
func (p *Payment) IsWaiver() bool {
	return p.Source == process.SourceDiscountWaiver
}

// ChangeAmount sets a new amount on an active payment.
func (p *Payment) ChangeAmount(amount decimal.Decimal, now time.Time) error {
	if !p.IsActive() {
		return ErrPaymentNotActive
	}
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	p.Amount = amount
	p.Touch(now)
	return nil
}

// Void marks an active payment voided, remembering the funded step state.
func (p *Payment) Void(reason string, stepBefore *process.StepState, now time.Time) error {
	if !p.IsActive() {
		return ErrPaymentNotActive
	}
	p.Status = PaymentVoided
	p.VoidReason = strings.TrimSpace(reason)
	p.StepSnapshot = stepBefore
	p.VoidedAt = &now
	p.Touch(now)
	return nil
}

// Reinstate returns a voided payment to active and hands back the step
// snapshot taken when it was voided.
func (p *Payment) Reinstate(now time.Time) (*process.StepState, error) {
	if p.Status != PaymentVoided {
		return nil, ErrPaymentNotVoided
	}
	snap := p.StepSnapshot
	p.Status = PaymentActive
	p.StepSnapshot = nil
	p.VoidReason = ""
	p.VoidedAt = nil
	p.Touch(now)
	return snap, nil
}

// Archive takes the payment out of the live ledger after a withdrawal.
func (p *Payment) Archive(now time.Time) {
	p.Status = PaymentArchived
	p.Touch(now)
}

// SetStatus forces a status, used when restoring a renunciation snapshot.
func (p *Payment) SetStatus(status PaymentStatus, now time.Time) {
	p.Status = status
	p.Touch(now)
}
