package sales

import (
	"strings"
	"time"

	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus tracks the refund owed after a renunciation.
type RefundStatus string

const (
	RefundPending RefundStatus = "pending"
	RefundClosed  RefundStatus = "closed"
)

// PaymentSnapshot is a payment as it stood when the client renounced.
type PaymentSnapshot struct {
	PaymentID   uuid.UUID             `json:"payment_id"`
	Amount      decimal.Decimal       `json:"amount"`
	Source      process.FundingSource `json:"source"`
	Status      PaymentStatus         `json:"status"`
	PaymentDate time.Time             `json:"payment_date"`
}

// Payout describes how a refund was paid out.
type Payout struct {
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
}

// Renunciation records a client's withdrawal from a purchase and the
// refund it triggers.
type Renunciation struct {
	shared.BaseAggregateRoot
	ClientID         uuid.UUID
	HouseID          uuid.UUID
	Motive           string
	PenaltyAmount    decimal.Decimal
	TotalPaidReal    decimal.Decimal
	AmountRefundable decimal.Decimal
	RefundStatus     RefundStatus
	PlanSnapshot     process.FinancialPlan
	StepsSnapshot    process.StepStates
	PaymentsSnapshot []PaymentSnapshot
	HouseSnapshot    HouseSnapshot
	Payout           *Payout
	ProcessedBy      string
	ClosedAt         *time.Time
}

// RenunciationInput groups what is captured when a client renounces.
type RenunciationInput struct {
	Client   *Client
	House    *House
	Payments []*Payment
	Motive   string
	Penalty  decimal.Decimal
	Actor    string
}

// NewRenunciation computes the refund and snapshots the client's state.
// Waiver payments do not count as money received. A refund that would be
// negative is clamped to zero and the record is closed immediately.
func NewRenunciation(in RenunciationInput, now time.Time) (*Renunciation, error) {
	motive := strings.TrimSpace(in.Motive)
	if motive == "" {
		return nil, shared.NewValidationError("Renunciation motive is required", map[string]string{"motive": "required"})
	}
	if in.Penalty.IsNegative() {
		return nil, shared.NewValidationError("Penalty cannot be negative", map[string]string{"penalty": "must be zero or positive"})
	}

	paid := decimal.Zero
	snaps := make([]PaymentSnapshot, 0, len(in.Payments))
	for _, p := range in.Payments {
		snaps = append(snaps, PaymentSnapshot{
			PaymentID:   p.ID,
			Amount:      p.Amount,
			Source:      p.Source,
			Status:      p.Status,
			PaymentDate: p.PaymentDate,
		})
		if p.IsActive() && !p.IsWaiver() {
			paid = paid.Add(p.Amount)
		}
	}

	refundable := paid.Sub(in.Penalty)
	status := RefundPending
	var closedAt *time.Time
	if !refundable.IsPositive() {
		refundable = decimal.Zero
		status = RefundClosed
		closedAt = &now
	}

	return &Renunciation{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ClientID:          in.Client.ID,
		HouseID:           in.House.ID,
		Motive:            motive,
		PenaltyAmount:     in.Penalty,
		TotalPaidReal:     paid,
		AmountRefundable:  refundable,
		RefundStatus:      status,
		PlanSnapshot:      in.Client.Plan.Clone(),
		StepsSnapshot:     in.Client.Steps.Clone(),
		PaymentsSnapshot:  snaps,
		HouseSnapshot:     in.House.Snapshot(),
		ProcessedBy:       in.Actor,
		ClosedAt:          closedAt,
	}, nil
}

// IsPending reports whether a refund is still owed.
func (r *Renunciation) IsPending() bool {
	return r.RefundStatus == RefundPending
}

// Reversible reports whether the renunciation can still be undone: the
// refund is pending, or it was closed on creation with nothing paid out.
func (r *Renunciation) Reversible() bool {
	return r.IsPending() || (r.Payout == nil && r.AmountRefundable.IsZero())
}

// Close records the payout and closes the refund.
func (r *Renunciation) Close(p Payout, now time.Time) error {
	if !r.IsPending() {
		return ErrRefundAlreadyClosed
	}
	if strings.TrimSpace(p.Method) == "" {
		return shared.NewValidationError("Payout method is required", map[string]string{"method": "required"})
	}
	if p.Amount.IsZero() {
		p.Amount = r.AmountRefundable
	}
	if !p.Amount.Equal(r.AmountRefundable) {
		return shared.NewValidationError("Payout amount must equal the refundable amount", map[string]string{
			"amount": "expected " + r.AmountRefundable.StringFixed(2),
		})
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	r.Payout = &p
	r.RefundStatus = RefundClosed
	r.ClosedAt = &now
	r.Touch(now)
	return nil
}
